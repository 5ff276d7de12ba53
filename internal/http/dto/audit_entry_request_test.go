package dto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/estatekit/fieldcrypt/internal/http/dto"
)

func TestListAuditEntriesRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		request dto.ListAuditEntriesRequest
		wantErr bool
	}{
		{
			name:    "empty filters are valid",
			request: dto.ListAuditEntriesRequest{},
			wantErr: false,
		},
		{
			name: "plain filters are valid",
			request: dto.ListAuditEntriesRequest{
				ObjectName:  "Person",
				RecordID:    "person-42",
				OperationID: "01890b2e-9f3a-7c40-b1d4-2f6f0a8c9e11",
			},
			wantErr: false,
		},
		{
			name: "object name with leading whitespace is rejected",
			request: dto.ListAuditEntriesRequest{
				ObjectName: " Person",
			},
			wantErr: true,
		},
		{
			name: "blank operation id is rejected",
			request: dto.ListAuditEntriesRequest{
				OperationID: "   ",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.request.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVerifyAuditEntriesRequest_Validate(t *testing.T) {
	assert.NoError(t, (&dto.VerifyAuditEntriesRequest{}).Validate())
	assert.NoError(t, (&dto.VerifyAuditEntriesRequest{BatchSize: 500}).Validate())
	assert.Error(t, (&dto.VerifyAuditEntriesRequest{BatchSize: -1}).Validate())
	assert.Error(t, (&dto.VerifyAuditEntriesRequest{BatchSize: 20000}).Validate())
}

package interceptor

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	auditDomain "github.com/estatekit/fieldcrypt/internal/audit/domain"
	auditUsecase "github.com/estatekit/fieldcrypt/internal/audit/usecase"
	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
	cryptoService "github.com/estatekit/fieldcrypt/internal/crypto/service"
	"github.com/estatekit/fieldcrypt/internal/database"
	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
)

// Audit copies of protected values get their own context identity so they can
// never be swapped with the live column value.
const (
	auditOldSuffix = ".audit-old"
	auditNewSuffix = ".audit-new"
)

// Store is the persistence layer that performs the durable entity write. It
// is invoked inside the commit transaction and must join it via the context.
type Store interface {
	ApplyChanges(ctx context.Context, set *EnrichedChangeSet) error
}

// Interceptor is the pre-commit hook owning the commit boundary: diff
// detection, protected-field encryption, audit recording, and the atomic
// write of data rows plus audit rows.
type Interceptor struct {
	registry   *classify.Registry
	encryption cryptoService.EncryptionService
	recorder   auditUsecase.RecorderUseCase
	txManager  database.TxManager
	logger     *slog.Logger
}

// New creates a persistence interceptor.
func New(
	registry *classify.Registry,
	encryption cryptoService.EncryptionService,
	recorder auditUsecase.RecorderUseCase,
	txManager database.TxManager,
	logger *slog.Logger,
) *Interceptor {
	return &Interceptor{
		registry:   registry,
		encryption: encryption,
		recorder:   recorder,
		txManager:  txManager,
		logger:     logger,
	}
}

// fieldDiff is one changed field of one entity, in plaintext form.
type fieldDiff struct {
	name      string
	oldValue  *string
	newValue  *string
	tier      classify.Tier
	protected bool
}

// sealTask encrypts one plaintext and delivers the opaque form to out.
type sealTask struct {
	tier      classify.Tier
	encCtx    cryptoDomain.EncryptionContext
	plaintext []byte
	out       *string
}

// fieldSlot is one persisted column value of an enriched change.
type fieldSlot struct {
	name  string
	value string
}

// OnBeforeCommit enriches a pending change set: it computes per-field diffs,
// encrypts protected values concurrently, and builds the audit entries for
// the commit under a single operation id. The acting principal must be
// present in the context. Nothing is persisted here; the caller commits the
// result via CommitWith.
func (i *Interceptor) OnBeforeCommit(ctx context.Context, set *ChangeSet) (*EnrichedChangeSet, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "no acting principal in context")
	}

	for idx := range set.Changes {
		if err := set.Changes[idx].Validate(); err != nil {
			return nil, err
		}
	}

	enriched := &EnrichedChangeSet{
		OperationID: uuid.Must(uuid.NewV7()),
		Changes:     make([]EnrichedChange, 0, len(set.Changes)),
	}

	var tasks []sealTask
	type pendingChange struct {
		change *EntityChange
		slots  []*fieldSlot
		diffs  []fieldDiff
	}
	pending := make([]pendingChange, 0, len(set.Changes))

	for idx := range set.Changes {
		change := &set.Changes[idx]
		diffs := i.computeDiffs(change)

		p := pendingChange{change: change, diffs: diffs}

		// Every protected After field is re-sealed, changed or not, so
		// plaintext never reaches the store.
		if change.Op != OpDelete {
			names := sortedKeys(change.After)
			for _, name := range names {
				slot := &fieldSlot{name: name}
				p.slots = append(p.slots, slot)

				tier, protected := i.registry.Tier(change.EntityType, name)
				if !protected {
					slot.value = change.After[name]
					continue
				}
				tasks = append(tasks, sealTask{
					tier:      tier,
					plaintext: []byte(change.After[name]),
					out:       &slot.value,
					encCtx: cryptoDomain.EncryptionContext{
						EntityType: change.EntityType,
						FieldName:  name,
						RecordID:   change.RecordID,
					},
				})
			}
		}

		// Audit copies of protected diff values are sealed at the source
		// field's tier under their own context identity.
		for d := range p.diffs {
			diff := &p.diffs[d]
			if !diff.protected {
				continue
			}
			if diff.oldValue != nil {
				tasks = append(tasks, sealTask{
					tier:      diff.tier,
					plaintext: []byte(*diff.oldValue),
					out:       diff.oldValue,
					encCtx: cryptoDomain.EncryptionContext{
						EntityType: change.EntityType,
						FieldName:  diff.name + auditOldSuffix,
						RecordID:   change.RecordID,
					},
				})
			}
			if diff.newValue != nil {
				tasks = append(tasks, sealTask{
					tier:      diff.tier,
					plaintext: []byte(*diff.newValue),
					out:       diff.newValue,
					encCtx: cryptoDomain.EncryptionContext{
						EntityType: change.EntityType,
						FieldName:  diff.name + auditNewSuffix,
						RecordID:   change.RecordID,
					},
				})
			}
		}

		pending = append(pending, p)
	}

	if err := i.sealAll(ctx, tasks); err != nil {
		return nil, err
	}

	for _, p := range pending {
		ec := EnrichedChange{
			EntityType: p.change.EntityType,
			RecordID:   p.change.RecordID,
			Op:         p.change.Op,
		}
		if len(p.slots) > 0 {
			ec.Fields = make(map[string]string, len(p.slots))
			for _, slot := range p.slots {
				ec.Fields[slot.name] = slot.value
			}
		}
		enriched.Changes = append(enriched.Changes, ec)

		for _, diff := range p.diffs {
			enriched.AuditEntries = append(enriched.AuditEntries, &auditDomain.AuditEntry{
				ObjectName:  p.change.EntityType,
				RecordID:    p.change.RecordID,
				ColumnName:  diff.name,
				OldValue:    diff.oldValue,
				NewValue:    diff.newValue,
				Actor:       actor,
				OperationID: enriched.OperationID,
			})
		}
	}

	return enriched, nil
}

// sealAll runs the commit's encryptions concurrently. The key service's
// weighted semaphore bounds actual key operations process-wide.
func (i *Interceptor) sealAll(ctx context.Context, tasks []sealTask) error {
	if len(tasks) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for t := range tasks {
		task := &tasks[t]
		g.Go(func() error {
			value, err := i.encryption.Encrypt(gctx, task.tier, task.plaintext, task.encCtx)
			if err != nil {
				return err
			}
			opaque, err := value.MarshalOpaque()
			if err != nil {
				return err
			}
			*task.out = opaque
			return nil
		})
	}
	return g.Wait()
}

// computeDiffs returns the changed fields of one entity in field-name order.
// Creates report every After field, deletes every Before field, updates only
// the fields whose value differs.
func (i *Interceptor) computeDiffs(change *EntityChange) []fieldDiff {
	var diffs []fieldDiff

	appendDiff := func(name string, oldValue, newValue *string) {
		tier, protected := i.registry.Tier(change.EntityType, name)
		diffs = append(diffs, fieldDiff{
			name:      name,
			oldValue:  oldValue,
			newValue:  newValue,
			tier:      tier,
			protected: protected,
		})
	}

	switch change.Op {
	case OpCreate:
		for _, name := range sortedKeys(change.After) {
			value := change.After[name]
			appendDiff(name, nil, &value)
		}
	case OpDelete:
		for _, name := range sortedKeys(change.Before) {
			value := change.Before[name]
			appendDiff(name, &value, nil)
		}
	case OpUpdate:
		names := make(map[string]struct{}, len(change.Before)+len(change.After))
		for name := range change.Before {
			names[name] = struct{}{}
		}
		for name := range change.After {
			names[name] = struct{}{}
		}
		for _, name := range sortedKeySet(names) {
			oldValue, hadOld := change.Before[name]
			newValue, hasNew := change.After[name]
			if hadOld && hasNew && oldValue == newValue {
				continue
			}
			var oldPtr, newPtr *string
			if hadOld {
				v := oldValue
				oldPtr = &v
			}
			if hasNew {
				v := newValue
				newPtr = &v
			}
			appendDiff(name, oldPtr, newPtr)
		}
	}

	return diffs
}

// CommitWith writes the enriched rows and their audit entries in one
// transaction. Any failure, audit recording included, rolls back the whole
// commit.
func (i *Interceptor) CommitWith(ctx context.Context, store Store, set *EnrichedChangeSet) error {
	err := i.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := store.ApplyChanges(ctx, set); err != nil {
			return apperrors.Wrap(err, "failed to apply changes")
		}
		return i.recorder.Record(ctx, set.AuditEntries)
	})
	if err != nil {
		i.logger.Error("commit aborted",
			slog.String("operation_id", set.OperationID.String()),
			slog.Int("changes", len(set.Changes)),
			slog.Any("error", err),
		)
		return err
	}

	i.logger.Debug("commit applied",
		slog.String("operation_id", set.OperationID.String()),
		slog.Int("changes", len(set.Changes)),
		slog.Int("audit_entries", len(set.AuditEntries)),
	)
	return nil
}

// Commit runs the full pre-commit hook and then commits: enrich, write,
// audit, one transaction.
func (i *Interceptor) Commit(ctx context.Context, store Store, set *ChangeSet) (*EnrichedChangeSet, error) {
	enriched, err := i.OnBeforeCommit(ctx, set)
	if err != nil {
		return nil, err
	}
	if err := i.CommitWith(ctx, store, enriched); err != nil {
		return nil, err
	}
	return enriched, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeySet(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lifelockr/internal/audit"
	"lifelockr/internal/auth"
	cr "lifelockr/internal/crypto"
	"lifelockr/internal/metrics"

	"github.com/google/uuid"
)

type Sealer interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
}

type Grantors interface {
	GrantorsFor(ctx context.Context, contactID string) ([]string, error)
}

type Auditor interface {
	Record(ctx context.Context, userID, action string, meta map[string]any)
}

type Service struct {
	store    Store
	sealer   Sealer
	grantors Grantors
	audit    Auditor
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(store Store, sealer Sealer, grantors Grantors, auditor Auditor, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:    store,
		sealer:   sealer,
		grantors: grantors,
		audit:    auditor,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

func (s *Service) Create(ctx context.Context, c *auth.Claims, d Draft) (*Item, error) {
	if err := auth.Authorize(c, auth.CapVaultCreate); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	rec := Record{
		ID:        uuid.NewString(),
		OwnerID:   c.UserID,
		Label:     d.Label,
		Type:      d.Type,
		Tags:      normTags(d.Tags),
		CreatedAt: now,
		UpdatedAt: now,
	}
	var err error
	if rec.NotesEnc, err = s.seal(d.Notes); err != nil {
		return nil, err
	}
	if rec.DataEnc, err = s.seal(d.Data); err != nil {
		return nil, err
	}
	if err := s.store.InsertItem(ctx, rec); err != nil {
		return nil, fmt.Errorf("vault: insert: %w", err)
	}
	s.audit.Record(ctx, c.UserID, audit.ActionCreateVaultItem, map[string]any{"label": rec.Label})

	item := view(rec)
	item.Notes, item.Data = d.Notes, d.Data
	return &item, nil
}

// List returns every item the caller may read: an owner's own items, the
// grantor's items for an emergency token, or the items of owners that
// granted a viewer access.
func (s *Service) List(ctx context.Context, c *auth.Claims) ([]Item, error) {
	if err := auth.Authorize(c, auth.CapVaultList); err != nil {
		return nil, err
	}
	owners, source, err := s.scope(ctx, c)
	if err != nil {
		return nil, err
	}
	if len(owners) == 0 {
		return []Item{}, nil
	}
	recs, err := s.store.ListItems(ctx, owners)
	if err != nil {
		return nil, fmt.Errorf("vault: list: %w", err)
	}

	items := make([]Item, 0, len(recs))
	for _, r := range recs {
		it, err := s.open(r)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	for _, it := range items {
		s.audit.Record(ctx, c.UserID, audit.ActionViewVaultItem, map[string]any{"label": it.Label, "source": source})
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, c *auth.Claims, id string) (*Item, error) {
	if err := auth.Authorize(c, auth.CapVaultGet); err != nil {
		return nil, err
	}
	rec, err := s.owned(ctx, c.UserID, id)
	if err != nil {
		return nil, err
	}
	it, err := s.open(*rec)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, c.UserID, audit.ActionViewVaultItem, map[string]any{"label": it.Label, "source": audit.SourceNormal})
	return &it, nil
}

func (s *Service) Update(ctx context.Context, c *auth.Claims, id string, p Patch) (*Item, error) {
	if err := auth.Authorize(c, auth.CapVaultUpdate); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	rec, err := s.owned(ctx, c.UserID, id)
	if err != nil {
		return nil, err
	}
	if p.Label != nil {
		rec.Label = *p.Label
	}
	if p.Type != nil {
		rec.Type = *p.Type
	}
	if p.Tags != nil {
		rec.Tags = normTags(*p.Tags)
	}
	if p.Notes != nil {
		if rec.NotesEnc, err = s.seal(*p.Notes); err != nil {
			return nil, err
		}
	}
	if p.Data != nil {
		if rec.DataEnc, err = s.seal(*p.Data); err != nil {
			return nil, err
		}
	}
	rec.UpdatedAt = s.now().UTC()

	it, err := s.open(*rec)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceItem(ctx, *rec); err != nil {
		return nil, fmt.Errorf("vault: update: %w", err)
	}
	s.audit.Record(ctx, c.UserID, audit.ActionUpdateVaultItem, map[string]any{"label": rec.Label})
	return &it, nil
}

func (s *Service) Delete(ctx context.Context, c *auth.Claims, id string) error {
	if err := auth.Authorize(c, auth.CapVaultDelete); err != nil {
		return err
	}
	rec, err := s.owned(ctx, c.UserID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteItem(ctx, c.UserID, id); err != nil {
		return err
	}
	s.audit.Record(ctx, c.UserID, audit.ActionDeleteVaultItem, map[string]any{"label": rec.Label})
	return nil
}

func (s *Service) scope(ctx context.Context, c *auth.Claims) ([]string, string, error) {
	switch c.Role {
	case auth.RoleOwner:
		return []string{c.UserID}, audit.SourceNormal, nil
	case auth.RoleEmergencyContact:
		if c.Grantor == "" {
			return nil, "", auth.ErrForbidden
		}
		return []string{c.Grantor}, audit.SourceEmergency, nil
	case auth.RoleViewer:
		owners, err := s.grantors.GrantorsFor(ctx, c.UserID)
		if err != nil {
			return nil, "", fmt.Errorf("vault: grantors: %w", err)
		}
		return owners, audit.SourceNormal, nil
	}
	return nil, "", auth.ErrForbidden
}

// owned hides items of other owners behind ErrItemNotFound.
func (s *Service) owned(ctx context.Context, ownerID, id string) (*Record, error) {
	rec, err := s.store.ItemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, ErrItemNotFound
	}
	return rec, nil
}

func (s *Service) seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return s.sealer.Encrypt(plaintext)
}

func (s *Service) open(r Record) (Item, error) {
	it := view(r)
	var err error
	if it.Notes, err = s.unseal(r.ID, r.NotesEnc); err != nil {
		return Item{}, err
	}
	if it.Data, err = s.unseal(r.ID, r.DataEnc); err != nil {
		return Item{}, err
	}
	return it, nil
}

func (s *Service) unseal(id, enc string) (string, error) {
	if enc == "" {
		return "", nil
	}
	pt, err := s.sealer.Decrypt(enc)
	if err != nil {
		s.metrics.DecryptionFailure()
		var de *cr.DecryptionError
		reason := "unknown"
		if errors.As(err, &de) {
			reason = de.Reason
		}
		s.logger.Error("vault item failed to decrypt", "item_id", id, "reason", reason)
		return "", err
	}
	return pt, nil
}

func view(r Record) Item {
	return Item{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Label:     r.Label,
		Type:      r.Type,
		Tags:      r.Tags,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func normTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

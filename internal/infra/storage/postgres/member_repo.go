package postgres

import (
	"context"
	"fmt"

	"github.com/anemtools/rdvwatcher/internal/core/domain"
	"github.com/anemtools/rdvwatcher/internal/infra/storage"
)

// MemberRepo implements storage.MemberRepository using PostgreSQL.
type MemberRepo struct {
	db *DB
}

// NewMemberRepo creates a new PostgreSQL member repository.
func NewMemberRepo(db *DB) *MemberRepo {
	return &MemberRepo{db: db}
}

const upsertMember = `
INSERT INTO members (
	wassit_number, identity_doc, ccp, phone,
	nom_ar, prenom_ar, nom_fr, prenom_fr,
	pre_inscription_id, demandeur_id, structure_id, rendez_vous_id,
	status, detail, full_detail, appointment_date,
	has_pre_inscription, has_appointment, have_allocation,
	honneur_doc_path, rdv_doc_path, consecutive_failures
) VALUES (
	:wassit_number, :identity_doc, :ccp, :phone,
	:nom_ar, :prenom_ar, :nom_fr, :prenom_fr,
	:pre_inscription_id, :demandeur_id, :structure_id, :rendez_vous_id,
	:status, :detail, :full_detail, :appointment_date,
	:has_pre_inscription, :has_appointment, :have_allocation,
	:honneur_doc_path, :rdv_doc_path, :consecutive_failures
)
ON CONFLICT (wassit_number) DO UPDATE SET
	identity_doc = EXCLUDED.identity_doc,
	ccp = EXCLUDED.ccp,
	phone = EXCLUDED.phone,
	nom_ar = EXCLUDED.nom_ar,
	prenom_ar = EXCLUDED.prenom_ar,
	nom_fr = EXCLUDED.nom_fr,
	prenom_fr = EXCLUDED.prenom_fr,
	pre_inscription_id = EXCLUDED.pre_inscription_id,
	demandeur_id = EXCLUDED.demandeur_id,
	structure_id = EXCLUDED.structure_id,
	rendez_vous_id = EXCLUDED.rendez_vous_id,
	status = EXCLUDED.status,
	detail = EXCLUDED.detail,
	full_detail = EXCLUDED.full_detail,
	appointment_date = EXCLUDED.appointment_date,
	has_pre_inscription = EXCLUDED.has_pre_inscription,
	has_appointment = EXCLUDED.has_appointment,
	have_allocation = EXCLUDED.have_allocation,
	honneur_doc_path = EXCLUDED.honneur_doc_path,
	rdv_doc_path = EXCLUDED.rdv_doc_path,
	consecutive_failures = EXCLUDED.consecutive_failures,
	updated_at = now()`

// Load returns the full roster in insertion order.
func (r *MemberRepo) Load(ctx context.Context) ([]*domain.Member, error) {
	var members []*domain.Member
	err := r.db.SelectContext(ctx, &members,
		`SELECT wassit_number, identity_doc, ccp, phone,
		        nom_ar, prenom_ar, nom_fr, prenom_fr,
		        pre_inscription_id, demandeur_id, structure_id, rendez_vous_id,
		        status, detail, full_detail, appointment_date,
		        has_pre_inscription, has_appointment, have_allocation,
		        honneur_doc_path, rdv_doc_path, consecutive_failures
		 FROM members ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}
	for _, m := range members {
		m.NormalizeLoaded()
	}
	return members, nil
}

// Upsert inserts or updates one member.
func (r *MemberRepo) Upsert(ctx context.Context, m *domain.Member) error {
	if _, err := r.db.NamedExecContext(ctx, upsertMember, m); err != nil {
		return fmt.Errorf("failed to upsert member %s: %w", m.WassitNumber, err)
	}
	return nil
}

// SaveAll writes through the whole roster in one transaction.
func (r *MemberRepo) SaveAll(ctx context.Context, members []*domain.Member) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, m := range members {
		if _, err := tx.NamedExecContext(ctx, upsertMember, m); err != nil {
			return fmt.Errorf("failed to save member %s: %w", m.WassitNumber, err)
		}
	}
	return tx.Commit()
}

// ResetFailures zeroes every member's consecutive failure counter.
func (r *MemberRepo) ResetFailures(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE members SET consecutive_failures = 0, updated_at = now()`); err != nil {
		return fmt.Errorf("failed to reset failure counters: %w", err)
	}
	return nil
}

// Delete removes a member from the roster.
func (r *MemberRepo) Delete(ctx context.Context, wassitNumber string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM members WHERE wassit_number = $1`, wassitNumber)
	if err != nil {
		return fmt.Errorf("failed to delete member %s: %w", wassitNumber, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return storage.ErrMemberNotFound
	}
	return nil
}

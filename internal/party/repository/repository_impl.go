package repository

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	partydomain "github.com/smallbiznis/licensia/internal/party/domain"
	pkgdb "github.com/smallbiznis/licensia/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() partydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, node *partydomain.PartyNode) error {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO parties (
			id, kind, parent_id, tier, status, company_name, subdomain, contact_email,
			license_key, api_key, commission_rate, max_children, max_subtree_licensees,
			current_children, current_subtree_licensees, can_customize_modules,
			can_create_sub_resellers, override_version, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		node.ID,
		node.Kind,
		node.ParentID,
		node.Tier,
		node.Status,
		node.CompanyName,
		node.Subdomain,
		node.ContactEmail,
		node.LicenseKey,
		node.APIKey,
		node.CommissionRate,
		node.MaxChildren,
		node.MaxSubtreeLicensees,
		node.CurrentChildren,
		node.CurrentSubtreeLicensees,
		node.CanCustomizeModules,
		node.CanCreateSubResellers,
		node.OverrideVersion,
		node.Metadata,
		node.CreatedAt,
		node.UpdatedAt,
	).Error
	// The service picks a free subdomain up front, but two concurrent creates
	// can still race onto the same unique index.
	if pkgdb.IsDuplicateKeyErr(err) {
		return partydomain.ErrConflict
	}
	return err
}

const partyColumns = `id, kind, parent_id, tier, status, company_name, subdomain, contact_email,
	 license_key, api_key, commission_rate, max_children, max_subtree_licensees,
	 current_children, current_subtree_licensees, can_customize_modules,
	 can_create_sub_resellers, override_version, metadata, created_at, updated_at`

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*partydomain.PartyNode, error) {
	var node partydomain.PartyNode
	err := db.WithContext(ctx).Raw(
		`SELECT `+partyColumns+` FROM parties WHERE id = ?`,
		id,
	).Scan(&node).Error
	if err != nil {
		return nil, err
	}
	if node.ID == 0 {
		return nil, nil
	}
	return &node, nil
}

func (r *repo) FindBySubdomain(ctx context.Context, db *gorm.DB, subdomain string) (*partydomain.PartyNode, error) {
	var node partydomain.PartyNode
	err := db.WithContext(ctx).Raw(
		`SELECT `+partyColumns+` FROM parties WHERE subdomain = ?`,
		subdomain,
	).Scan(&node).Error
	if err != nil {
		return nil, err
	}
	if node.ID == 0 {
		return nil, nil
	}
	return &node, nil
}

func (r *repo) FindChildren(ctx context.Context, db *gorm.DB, parentID snowflake.ID) ([]partydomain.PartyNode, error) {
	var nodes []partydomain.PartyNode
	err := db.WithContext(ctx).Raw(
		`SELECT `+partyColumns+` FROM parties WHERE parent_id = ? ORDER BY created_at ASC`,
		parentID,
	).Scan(&nodes).Error
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

func (r *repo) AncestorChain(ctx context.Context, db *gorm.DB, id snowflake.ID) ([]partydomain.PartyNode, error) {
	chain := make([]partydomain.PartyNode, 0, partydomain.MaxDepth)
	next := &id
	for depth := 0; next != nil; depth++ {
		if depth >= partydomain.MaxDepth {
			return nil, fmt.Errorf("ancestor chain for party %d exceeds depth %d", id, partydomain.MaxDepth)
		}
		node, err := r.FindByID(ctx, db, *next)
		if err != nil {
			return nil, err
		}
		if node == nil {
			if depth == 0 {
				return nil, nil
			}
			return nil, fmt.Errorf("party %d references missing parent %d", chain[depth-1].ID, *next)
		}
		chain = append(chain, *node)
		next = node.ParentID
	}
	return chain, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, node *partydomain.PartyNode) error {
	return db.WithContext(ctx).Exec(
		`UPDATE parties SET
			tier = ?, status = ?, company_name = ?, contact_email = ?, commission_rate = ?,
			max_children = ?, max_subtree_licensees = ?, can_customize_modules = ?,
			can_create_sub_resellers = ?, metadata = ?, updated_at = ?
		 WHERE id = ?`,
		node.Tier,
		node.Status,
		node.CompanyName,
		node.ContactEmail,
		node.CommissionRate,
		node.MaxChildren,
		node.MaxSubtreeLicensees,
		node.CanCustomizeModules,
		node.CanCreateSubResellers,
		node.Metadata,
		node.UpdatedAt,
		node.ID,
	).Error
}

func (r *repo) BumpOverrideVersion(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE parties SET override_version = override_version + 1 WHERE id = ?`,
		id,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM parties WHERE id = ?`, id).Error
}

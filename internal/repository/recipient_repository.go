package repository

import (
	"database/sql"

	"github.com/unclebandit/courier-backend/internal/model"
)

// RecipientRepositoryInterface defines the recipient lookups dispatch needs.
// Recipient CRUD itself lives outside this service.
type RecipientRepositoryInterface interface {
	GetByID(id int) (*model.Recipient, error)
	ListIDsByTenant(tenantID int) ([]int, error)
}

type RecipientRepository struct {
	DB *sql.DB
}

// GetByID fetches a recipient by ID. Returns nil without error when absent.
func (r *RecipientRepository) GetByID(id int) (*model.Recipient, error) {
	query := `
        SELECT id, tenant_id, phone, first_name, last_name
        FROM recipients
        WHERE id = $1
    `
	var rec model.Recipient
	err := r.DB.QueryRow(query, id).Scan(&rec.ID, &rec.TenantID, &rec.Phone, &rec.FirstName, &rec.LastName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *RecipientRepository) ListIDsByTenant(tenantID int) ([]int, error) {
	rows, err := r.DB.Query(`SELECT id FROM recipients WHERE tenant_id=$1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)

package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"go-business-hub/internal/model"
)

const companyColumns = `id, name, plan, logo_url, created_at`

type CompanyRepository struct {
	pool Pool
}

func NewCompanyRepository(pool Pool) *CompanyRepository {
	return &CompanyRepository{pool: pool}
}

func (r *CompanyRepository) FindByID(ctx context.Context, id string) (model.Company, error) {
	c, err := scanCompany(r.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
	if err != nil {
		return model.Company{}, fmt.Errorf("find company: %w", err)
	}
	return c, nil
}

// FindOrCreate returns the company with the given name, creating it on the given plan
// when it does not exist yet.
func (r *CompanyRepository) FindOrCreate(ctx context.Context, name string, plan string) (model.Company, error) {
	name = strings.TrimSpace(name)

	c, err := scanCompany(r.pool.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE lower(name) = lower($1)`, name))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, model.ErrCompanyNotFound) {
		return model.Company{}, fmt.Errorf("find company by name: %w", err)
	}

	c = model.Company{
		ID:        uuid.NewString(),
		Name:      name,
		Plan:      plan,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := r.pool.Exec(ctx,
		`INSERT INTO companies (id, name, plan, logo_url, created_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Name, c.Plan, c.LogoURL, c.CreatedAt); err != nil {
		return model.Company{}, fmt.Errorf("create company: %w", err)
	}
	return c, nil
}

func (r *CompanyRepository) List(ctx context.Context) ([]model.Company, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY lower(name)`)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	companies := make([]model.Company, 0)
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

func scanCompany(row pgx.Row) (model.Company, error) {
	var c model.Company
	err := row.Scan(&c.ID, &c.Name, &c.Plan, &c.LogoURL, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Company{}, model.ErrCompanyNotFound
	}
	if err != nil {
		return model.Company{}, fmt.Errorf("scan company: %w", err)
	}
	return c, nil
}

package rules

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maternacare/cds/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Postgres-backed rule repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const ruleCols = `id, rule_code, dak_source_id, guideline_version, evidence_rating,
	who_guideline_ref, module_code, status, display_to_health_worker, rule_name,
	description, alert_severity, alert_title, alert_message, recommendations,
	trigger_clauses, clinical_thresholds, version, created_at, updated_at`

func (r *repoPG) scanRule(row pgx.Row) (*DecisionRule, error) {
	var rule DecisionRule
	err := row.Scan(&rule.ID, &rule.RuleCode, &rule.DAKSourceID, &rule.GuidelineVersion, &rule.EvidenceRating,
		&rule.WHOGuidelineRef, &rule.ModuleCode, &rule.Status, &rule.DisplayToHealthWorker, &rule.RuleName,
		&rule.Description, &rule.AlertSeverity, &rule.AlertTitle, &rule.AlertMessage, &rule.Recommendations,
		&rule.TriggerClauses, &rule.ClinicalThresholds, &rule.Version, &rule.CreatedAt, &rule.UpdatedAt)
	return &rule, err
}

func (r *repoPG) Insert(ctx context.Context, rule *DecisionRule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO dak_rule (id, rule_code, dak_source_id, guideline_version, evidence_rating,
			who_guideline_ref, module_code, status, display_to_health_worker, rule_name,
			description, alert_severity, alert_title, alert_message, recommendations,
			trigger_clauses, clinical_thresholds, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		rule.ID, rule.RuleCode, rule.DAKSourceID, rule.GuidelineVersion, rule.EvidenceRating,
		rule.WHOGuidelineRef, rule.ModuleCode, rule.Status, rule.DisplayToHealthWorker, rule.RuleName,
		rule.Description, rule.AlertSeverity, rule.AlertTitle, rule.AlertMessage, rule.Recommendations,
		rule.TriggerClauses, rule.ClinicalThresholds, rule.Version)
	return err
}

func (r *repoPG) Update(ctx context.Context, rule *DecisionRule) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE dak_rule SET guideline_version=$2, evidence_rating=$3, who_guideline_ref=$4,
			status=$5, display_to_health_worker=$6, rule_name=$7, description=$8,
			alert_severity=$9, alert_title=$10, alert_message=$11, recommendations=$12,
			trigger_clauses=$13, clinical_thresholds=$14, version=$15, updated_at=NOW()
		WHERE id = $1`,
		rule.ID, rule.GuidelineVersion, rule.EvidenceRating, rule.WHOGuidelineRef,
		rule.Status, rule.DisplayToHealthWorker, rule.RuleName, rule.Description,
		rule.AlertSeverity, rule.AlertTitle, rule.AlertMessage, rule.Recommendations,
		rule.TriggerClauses, rule.ClinicalThresholds, rule.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Resource: "rule", ID: rule.ID.String()}
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*DecisionRule, error) {
	rule, err := r.scanRule(r.conn(ctx).QueryRow(ctx, `SELECT `+ruleCols+` FROM dak_rule WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, &NotFoundError{Resource: "rule", ID: id.String()}
	}
	return rule, err
}

func (r *repoPG) GetByCodeVersion(ctx context.Context, moduleCode, ruleCode string, version float64) (*DecisionRule, error) {
	rule, err := r.scanRule(r.conn(ctx).QueryRow(ctx,
		`SELECT `+ruleCols+` FROM dak_rule WHERE module_code = $1 AND rule_code = $2 AND version = $3`,
		moduleCode, ruleCode, version))
	if err == pgx.ErrNoRows {
		return nil, &NotFoundError{Resource: "rule", ID: ruleCode}
	}
	return rule, err
}

func (r *repoPG) SupersedeActive(ctx context.Context, moduleCode, ruleCode string) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE dak_rule SET status = $3, updated_at = NOW()
		 WHERE module_code = $1 AND rule_code = $2 AND status = $4`,
		moduleCode, ruleCode, StatusSuperseded, StatusActive)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) ListActive(ctx context.Context, moduleCode string) ([]*DecisionRule, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+ruleCols+` FROM dak_rule WHERE module_code = $1 AND status = $2 ORDER BY rule_code`,
		moduleCode, StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *repoPG) List(ctx context.Context, moduleCode string, activeOnly bool, limit, offset int) ([]*DecisionRule, int, error) {
	where := `WHERE 1=1`
	args := []interface{}{}
	if moduleCode != "" {
		args = append(args, moduleCode)
		where += ` AND module_code = $1`
	}
	if activeOnly {
		args = append(args, StatusActive)
		where += ` AND status = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM dak_rule `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+ruleCols+` FROM dak_rule `+where+
			` ORDER BY module_code, rule_code, version DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := r.collect(rows)
	return items, total, err
}

func (r *repoPG) ListAll(ctx context.Context) ([]*DecisionRule, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+ruleCols+` FROM dak_rule ORDER BY module_code, rule_code, version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *repoPG) collect(rows pgx.Rows) ([]*DecisionRule, error) {
	var items []*DecisionRule
	for rows.Next() {
		rule, err := r.scanRule(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rule)
	}
	return items, rows.Err()
}


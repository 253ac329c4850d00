/*
Package sqlite provides a SQLite-backed implementation of contract.Store.

PURPOSE:
  Implements the full persistence interface (contracts, details, valuation
  units, policies, payments, reference data) using SQLite. In production,
  the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

SOFT-DELETE ENFORCEMENT:
  Contracts, contract details and plan details carry is_deleted; every
  read filters on it. Nothing is ever physically removed.

KEY TABLES:
  contracts:               The aggregate root, one row per generation
  contract_details:        One row per enrolled insuree
  contract_plan_details:   Valuation units (detail x plan x policy)
  policies:                Generated coverage periods
  contract_policies:       Contract -> policy linkage
  insuree_policies:        Activation records after payment
  payments/payment_details/contributions: Payment linkage
  sequences:               Monotonic id allocation per entity prefix

INDEXES:
  - idx_contracts_holder:       Policy-holder contract listing
  - idx_contracts_code:         Code uniqueness checks and amendments
  - idx_details_contract:       Detail fan-out per contract
  - idx_plan_details_details:   Valuation unit lookup per detail
  - idx_policies_family_product: Coverage window queries (hot path)

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  duration of the database transaction so valuation reads observe their
  own writes.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/contracts.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := contract.NewService(store, rules, logger)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - contract/store.go: Interface definitions
  - contract/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/contract-engine/contract"
)

// Store implements contract.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		policy_holder_id TEXT NOT NULL,
		amount_notified TEXT NOT NULL DEFAULT '0',
		amount_rectified TEXT NOT NULL DEFAULT '0',
		amount_due TEXT NOT NULL DEFAULT '0',
		state INTEGER NOT NULL,
		amendment INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		date_valid_from TEXT NOT NULL,
		date_valid_to TEXT NOT NULL,
		date_approved TEXT,
		date_payment_due TEXT,
		payment_reference TEXT,
		penalty_raised BOOLEAN DEFAULT FALSE,
		penalty_raised_date TEXT,
		penalty_waive_contract BOOLEAN DEFAULT FALSE,
		penalty_waive_payment BOOLEAN DEFAULT FALSE,
		penalty_waive_contract_reason TEXT,
		penalty_waive_payment_reason TEXT,
		parent_id TEXT,
		erp_contract_id INTEGER DEFAULT 0,
		erp_invoice_access_id TEXT,
		use_bundle_amount BOOLEAN DEFAULT FALSE,
		process_status TEXT,
		json_ext TEXT,
		date_created TEXT NOT NULL,
		date_updated TEXT NOT NULL,
		is_deleted BOOLEAN DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_contracts_holder
		ON contracts(policy_holder_id);
	CREATE INDEX IF NOT EXISTS idx_contracts_code
		ON contracts(code, amendment);
	CREATE INDEX IF NOT EXISTS idx_contracts_state
		ON contracts(state);

	CREATE TABLE IF NOT EXISTS contract_details (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL,
		insuree_id TEXT NOT NULL,
		bundle_id TEXT NOT NULL,
		is_confirmed BOOLEAN DEFAULT FALSE,
		is_new_insuree BOOLEAN DEFAULT FALSE,
		input_json TEXT,
		date_created TEXT NOT NULL,
		is_deleted BOOLEAN DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_details_contract
		ON contract_details(contract_id);
	CREATE INDEX IF NOT EXISTS idx_details_insuree
		ON contract_details(insuree_id, bundle_id);

	CREATE TABLE IF NOT EXISTS contract_plan_details (
		id TEXT PRIMARY KEY,
		details_id TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		policy_id TEXT,
		contribution_id TEXT,
		date_valid_from TEXT NOT NULL,
		date_valid_to TEXT NOT NULL,
		calculated_amount TEXT NOT NULL DEFAULT '0',
		is_deleted BOOLEAN DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_plan_details_details
		ON contract_plan_details(details_id);
	CREATE INDEX IF NOT EXISTS idx_plan_details_contribution
		ON contract_plan_details(contribution_id) WHERE contribution_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		family_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		status INTEGER NOT NULL,
		stage TEXT NOT NULL,
		enroll_date TEXT NOT NULL,
		start_date TEXT NOT NULL,
		effective_date TEXT NOT NULL,
		expiry_date TEXT NOT NULL,
		validity_from TEXT NOT NULL,
		validity_to TEXT
	);

	-- Coverage window queries (hot path during policy generation)
	CREATE INDEX IF NOT EXISTS idx_policies_family_product
		ON policies(family_id, product_id, start_date);

	CREATE TABLE IF NOT EXISTS contract_policies (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		insuree_id TEXT NOT NULL,
		policy_holder_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contract_policies_contract
		ON contract_policies(contract_id);

	CREATE TABLE IF NOT EXISTS insuree_policies (
		id TEXT PRIMARY KEY,
		insuree_id TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		enrollment_date TEXT NOT NULL,
		start_date TEXT NOT NULL,
		effective_date TEXT NOT NULL,
		expiry_date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_insuree_policies_insuree
		ON insuree_policies(insuree_id);

	CREATE TABLE IF NOT EXISTS insuree_waiting_periods (
		id TEXT PRIMARY KEY,
		policy_holder_id TEXT NOT NULL,
		policy_holder_plan_id TEXT,
		insuree_id TEXT NOT NULL,
		waiting_period INTEGER NOT NULL DEFAULT 0,
		periodicity INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_waiting_periods_insuree
		ON insuree_waiting_periods(insuree_id, policy_holder_id);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL,
		expected_amount TEXT NOT NULL DEFAULT '0',
		received_amount TEXT NOT NULL DEFAULT '0',
		request_date TEXT NOT NULL,
		received_date TEXT,
		payment_code TEXT,
		payment_reference TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_payments_contract
		ON payments(contract_id);

	CREATE TABLE IF NOT EXISTS payment_details (
		id TEXT PRIMARY KEY,
		payment_id TEXT NOT NULL,
		product_code TEXT,
		insurance_number TEXT,
		expected_amount TEXT NOT NULL DEFAULT '0',
		contribution_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_payment_details_payment
		ON payment_details(payment_id);
	CREATE INDEX IF NOT EXISTS idx_payment_details_contribution
		ON payment_details(contribution_id) WHERE contribution_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS contributions (
		id TEXT PRIMARY KEY,
		policy_id TEXT NOT NULL,
		amount TEXT NOT NULL DEFAULT '0',
		pay_date TEXT NOT NULL,
		pay_type TEXT
	);

	CREATE TABLE IF NOT EXISTS policy_holders (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		trade_name TEXT,
		contact_name TEXT,
		email TEXT,
		location_id TEXT
	);

	CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		parent_id TEXT
	);

	CREATE TABLE IF NOT EXISTS insurees (
		id TEXT PRIMARY KEY,
		insurance_number TEXT NOT NULL,
		family_id TEXT,
		other_names TEXT,
		last_name TEXT
	);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		insurance_period INTEGER NOT NULL,
		policy_waiting_period INTEGER NOT NULL DEFAULT 0,
		config_json TEXT
	);

	CREATE TABLE IF NOT EXISTS contribution_plans (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		name TEXT,
		periodicity INTEGER NOT NULL,
		product_id TEXT NOT NULL,
		calc_rule TEXT,
		employer_contribution TEXT NOT NULL DEFAULT '0',
		employee_contribution TEXT NOT NULL DEFAULT '0'
	);

	CREATE TABLE IF NOT EXISTS contribution_plan_bundles (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		name TEXT,
		periodicity INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS bundle_details (
		id TEXT PRIMARY KEY,
		bundle_id TEXT NOT NULL,
		plan_id TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bundle_details_bundle
		ON bundle_details(bundle_id);

	CREATE TABLE IF NOT EXISTS policy_holder_insurees (
		id TEXT PRIMARY KEY,
		policy_holder_id TEXT NOT NULL,
		insuree_id TEXT NOT NULL,
		bundle_id TEXT,
		last_policy_id TEXT,
		input_json TEXT,
		is_deleted BOOLEAN DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_phi_holder
		ON policy_holder_insurees(policy_holder_id);

	CREATE TABLE IF NOT EXISTS sequences (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx abstracts *sql.DB and *sql.Tx so the same statement helpers serve
// both direct calls and calls joining a WithTx transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) nextID(ctx context.Context, q dbtx, prefix string) (string, error) {
	var value int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO sequences (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value
	`, prefix).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("failed to allocate id: %w", err)
	}
	return fmt.Sprintf("%s-%06d", prefix, value), nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. The write lock is held
// for the whole transaction so in-transaction reads see their own writes.
func (s *Store) WithTx(ctx context.Context, fn func(contract.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes every Store call at the open transaction.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) WithTx(_ context.Context, fn func(contract.Store) error) error {
	// already inside a transaction; nest flat
	return fn(ts)
}

// =============================================================================
// CONTRACT STORE
// =============================================================================

const contractColumns = `id, code, policy_holder_id, amount_notified, amount_rectified, amount_due,
	state, amendment, version, date_valid_from, date_valid_to, date_approved, date_payment_due,
	payment_reference, penalty_raised, penalty_raised_date, penalty_waive_contract,
	penalty_waive_payment, penalty_waive_contract_reason, penalty_waive_payment_reason,
	parent_id, erp_contract_id, erp_invoice_access_id, use_bundle_amount, process_status,
	json_ext, date_created, date_updated, is_deleted`

func (s *Store) CreateContract(ctx context.Context, c *contract.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createContract(ctx, s.db, c)
}

func (ts *txStore) CreateContract(ctx context.Context, c *contract.Contract) error {
	return ts.parent.createContract(ctx, ts.tx, c)
}

func (s *Store) createContract(ctx context.Context, q dbtx, c *contract.Contract) error {
	if c.ID == "" {
		id, err := s.nextID(ctx, q, "C")
		if err != nil {
			return err
		}
		c.ID = contract.ContractID(id)
	}

	auditJSON, _ := json.Marshal(c.Audit)

	query := `
		INSERT INTO contracts (` + contractColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		c.ID, c.Code, c.PolicyHolderID,
		c.AmountNotified.String(), c.AmountRectified.String(), c.AmountDue.String(),
		c.State, c.Amendment, c.Version,
		fmtTime(c.DateValidFrom), fmtTime(c.DateValidTo),
		fmtTimePtr(c.DateApproved), fmtTimePtr(c.DatePaymentDue),
		c.PaymentReference,
		c.PenaltyRaised, fmtTimePtr(c.PenaltyRaisedDate),
		c.PenaltyWaiveOffContract, c.PenaltyWaiveOffPayment,
		c.PenaltyWaiveOffContractReason, c.PenaltyWaiveOffPaymentReason,
		string(c.ParentID), c.ErpContractID, c.ErpInvoiceAccessID,
		c.UseBundleContributionPlanAmount, string(c.ProcessStatus),
		string(auditJSON),
		fmtTime(c.DateCreated), fmtTime(c.DateUpdated), c.IsDeleted,
	)
	if err != nil {
		return fmt.Errorf("failed to insert contract: %w", err)
	}
	return nil
}

func (s *Store) UpdateContract(ctx context.Context, c *contract.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateContract(ctx, s.db, c)
}

func (ts *txStore) UpdateContract(ctx context.Context, c *contract.Contract) error {
	return ts.parent.updateContract(ctx, ts.tx, c)
}

func (s *Store) updateContract(ctx context.Context, q dbtx, c *contract.Contract) error {
	auditJSON, _ := json.Marshal(c.Audit)

	query := `
		UPDATE contracts SET
			code = ?, policy_holder_id = ?,
			amount_notified = ?, amount_rectified = ?, amount_due = ?,
			state = ?, amendment = ?, version = ?,
			date_valid_from = ?, date_valid_to = ?, date_approved = ?, date_payment_due = ?,
			payment_reference = ?,
			penalty_raised = ?, penalty_raised_date = ?,
			penalty_waive_contract = ?, penalty_waive_payment = ?,
			penalty_waive_contract_reason = ?, penalty_waive_payment_reason = ?,
			parent_id = ?, erp_contract_id = ?, erp_invoice_access_id = ?,
			use_bundle_amount = ?, process_status = ?, json_ext = ?,
			date_updated = ?, is_deleted = ?
		WHERE id = ?
	`

	res, err := q.ExecContext(ctx, query,
		c.Code, c.PolicyHolderID,
		c.AmountNotified.String(), c.AmountRectified.String(), c.AmountDue.String(),
		c.State, c.Amendment, c.Version,
		fmtTime(c.DateValidFrom), fmtTime(c.DateValidTo),
		fmtTimePtr(c.DateApproved), fmtTimePtr(c.DatePaymentDue),
		c.PaymentReference,
		c.PenaltyRaised, fmtTimePtr(c.PenaltyRaisedDate),
		c.PenaltyWaiveOffContract, c.PenaltyWaiveOffPayment,
		c.PenaltyWaiveOffContractReason, c.PenaltyWaiveOffPaymentReason,
		string(c.ParentID), c.ErpContractID, c.ErpInvoiceAccessID,
		c.UseBundleContributionPlanAmount, string(c.ProcessStatus),
		string(auditJSON),
		fmtTime(c.DateUpdated), c.IsDeleted,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update contract: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contract.ErrContractNotFound
	}
	return nil
}

func (s *Store) GetContract(ctx context.Context, id contract.ContractID) (*contract.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getContract(ctx, s.db, id)
}

func (ts *txStore) GetContract(ctx context.Context, id contract.ContractID) (*contract.Contract, error) {
	return ts.parent.getContract(ctx, ts.tx, id)
}

func (s *Store) getContract(ctx context.Context, q dbtx, id contract.ContractID) (*contract.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE id = ? AND is_deleted = FALSE`
	contracts, err := s.queryContracts(ctx, q, query, id)
	if err != nil || len(contracts) == 0 {
		return nil, err
	}
	return contracts[0], nil
}

func (s *Store) ContractByCodeAndAmendment(ctx context.Context, code string, amendment int) (*contract.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contractByCodeAndAmendment(ctx, s.db, code, amendment)
}

func (ts *txStore) ContractByCodeAndAmendment(ctx context.Context, code string, amendment int) (*contract.Contract, error) {
	return ts.parent.contractByCodeAndAmendment(ctx, ts.tx, code, amendment)
}

func (s *Store) contractByCodeAndAmendment(ctx context.Context, q dbtx, code string, amendment int) (*contract.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts
		WHERE code = ? AND amendment = ? AND is_deleted = FALSE`
	contracts, err := s.queryContracts(ctx, q, query, code, amendment)
	if err != nil || len(contracts) == 0 {
		return nil, err
	}
	return contracts[0], nil
}

func (s *Store) ContractsByPolicyHolder(ctx context.Context, id contract.PolicyHolderID) ([]*contract.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contractsByPolicyHolder(ctx, s.db, id)
}

func (ts *txStore) ContractsByPolicyHolder(ctx context.Context, id contract.PolicyHolderID) ([]*contract.Contract, error) {
	return ts.parent.contractsByPolicyHolder(ctx, ts.tx, id)
}

func (s *Store) contractsByPolicyHolder(ctx context.Context, q dbtx, id contract.PolicyHolderID) ([]*contract.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts
		WHERE policy_holder_id = ? AND is_deleted = FALSE
		ORDER BY date_created DESC`
	return s.queryContracts(ctx, q, query, id)
}

func (s *Store) CodesForMonth(ctx context.Context, prefix string, year int, month time.Month) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.codesForMonth(ctx, s.db, prefix, year, month)
}

func (ts *txStore) CodesForMonth(ctx context.Context, prefix string, year int, month time.Month) ([]string, error) {
	return ts.parent.codesForMonth(ctx, ts.tx, prefix, year, month)
}

func (s *Store) codesForMonth(ctx context.Context, q dbtx, prefix string, year int, month time.Month) ([]string, error) {
	query := `
		SELECT code FROM contracts
		WHERE code LIKE ? || '%' AND is_deleted = FALSE
		  AND strftime('%Y', date_created) = ? AND strftime('%m', date_created) = ?
	`
	rows, err := q.QueryContext(ctx, query, prefix,
		fmt.Sprintf("%04d", year), fmt.Sprintf("%02d", int(month)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (s *Store) CodeExists(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.codeExists(ctx, s.db, code)
}

func (ts *txStore) CodeExists(ctx context.Context, code string) (bool, error) {
	return ts.parent.codeExists(ctx, ts.tx, code)
}

func (s *Store) codeExists(ctx context.Context, q dbtx, code string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM contracts WHERE code = ? AND is_deleted = FALSE",
		code,
	).Scan(&count)
	return count > 0, err
}

func (s *Store) SoftDeleteContract(ctx context.Context, id contract.ContractID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.softDeleteContract(ctx, s.db, id)
}

func (ts *txStore) SoftDeleteContract(ctx context.Context, id contract.ContractID) error {
	return ts.parent.softDeleteContract(ctx, ts.tx, id)
}

func (s *Store) softDeleteContract(ctx context.Context, q dbtx, id contract.ContractID) error {
	res, err := q.ExecContext(ctx,
		"UPDATE contracts SET is_deleted = TRUE WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contract.ErrContractNotFound
	}
	if _, err := q.ExecContext(ctx, `
		UPDATE contract_plan_details SET is_deleted = TRUE
		WHERE details_id IN (SELECT id FROM contract_details WHERE contract_id = ?)`, id); err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		"UPDATE contract_details SET is_deleted = TRUE WHERE contract_id = ?", id)
	return err
}

func (s *Store) ContractsToTerminate(ctx context.Context, now time.Time) ([]*contract.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contractsToTerminate(ctx, s.db, now)
}

func (ts *txStore) ContractsToTerminate(ctx context.Context, now time.Time) ([]*contract.Contract, error) {
	return ts.parent.contractsToTerminate(ctx, ts.tx, now)
}

func (s *Store) contractsToTerminate(ctx context.Context, q dbtx, now time.Time) ([]*contract.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts
		WHERE state = ? AND date_valid_to < ? AND is_deleted = FALSE`
	return s.queryContracts(ctx, q, query, contract.StateEffective, fmtTime(now))
}

func (s *Store) queryContracts(ctx context.Context, q dbtx, query string, args ...any) ([]*contract.Contract, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	defer rows.Close()

	var contracts []*contract.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

func scanContract(rows *sql.Rows) (*contract.Contract, error) {
	var (
		c                contract.Contract
		notified         string
		rectified        string
		due              string
		validFrom        string
		validTo          string
		approved         sql.NullString
		paymentDue       sql.NullString
		paymentRef       sql.NullString
		penaltyDate      sql.NullString
		waiveContractRsn sql.NullString
		waivePaymentRsn  sql.NullString
		parentID         sql.NullString
		erpInvoice       sql.NullString
		processStatus    sql.NullString
		auditJSON        sql.NullString
		created          string
		updated          string
	)

	err := rows.Scan(
		&c.ID, &c.Code, &c.PolicyHolderID, &notified, &rectified, &due,
		&c.State, &c.Amendment, &c.Version, &validFrom, &validTo, &approved, &paymentDue,
		&paymentRef, &c.PenaltyRaised, &penaltyDate,
		&c.PenaltyWaiveOffContract, &c.PenaltyWaiveOffPayment,
		&waiveContractRsn, &waivePaymentRsn,
		&parentID, &c.ErpContractID, &erpInvoice,
		&c.UseBundleContributionPlanAmount, &processStatus,
		&auditJSON, &created, &updated, &c.IsDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan contract: %w", err)
	}

	c.AmountNotified = mustDecimal(notified)
	c.AmountRectified = mustDecimal(rectified)
	c.AmountDue = mustDecimal(due)
	c.DateValidFrom = parseTime(validFrom)
	c.DateValidTo = parseTime(validTo)
	c.DateApproved = parseTimePtr(approved)
	c.DatePaymentDue = parseTimePtr(paymentDue)
	c.PaymentReference = paymentRef.String
	c.PenaltyRaisedDate = parseTimePtr(penaltyDate)
	c.PenaltyWaiveOffContractReason = waiveContractRsn.String
	c.PenaltyWaiveOffPaymentReason = waivePaymentRsn.String
	c.ParentID = contract.ContractID(parentID.String)
	c.ErpInvoiceAccessID = erpInvoice.String
	c.ProcessStatus = contract.ProcessStatus(processStatus.String)
	c.DateCreated = parseTime(created)
	c.DateUpdated = parseTime(updated)

	if auditJSON.Valid && auditJSON.String != "" {
		json.Unmarshal([]byte(auditJSON.String), &c.Audit)
	}

	return &c, nil
}

// =============================================================================
// DETAILS STORE
// =============================================================================

const detailsColumns = `id, contract_id, insuree_id, bundle_id, is_confirmed, is_new_insuree,
	input_json, date_created, is_deleted`

func (s *Store) CreateDetails(ctx context.Context, d *contract.ContractDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createDetails(ctx, s.db, d)
}

func (ts *txStore) CreateDetails(ctx context.Context, d *contract.ContractDetails) error {
	return ts.parent.createDetails(ctx, ts.tx, d)
}

func (s *Store) createDetails(ctx context.Context, q dbtx, d *contract.ContractDetails) error {
	if d.ID == "" {
		id, err := s.nextID(ctx, q, "CD")
		if err != nil {
			return err
		}
		d.ID = contract.DetailsID(id)
	}

	inputJSON, _ := json.Marshal(d.Input)
	_, err := q.ExecContext(ctx, `
		INSERT INTO contract_details (`+detailsColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ContractID, d.InsureeID, d.BundleID, d.IsConfirmed, d.IsNewInsuree,
		string(inputJSON), fmtTime(d.DateCreated), d.IsDeleted,
	)
	if err != nil {
		return fmt.Errorf("failed to insert contract details: %w", err)
	}
	return nil
}

func (s *Store) UpdateDetails(ctx context.Context, d *contract.ContractDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateDetails(ctx, s.db, d)
}

func (ts *txStore) UpdateDetails(ctx context.Context, d *contract.ContractDetails) error {
	return ts.parent.updateDetails(ctx, ts.tx, d)
}

func (s *Store) updateDetails(ctx context.Context, q dbtx, d *contract.ContractDetails) error {
	inputJSON, _ := json.Marshal(d.Input)
	res, err := q.ExecContext(ctx, `
		UPDATE contract_details SET
			contract_id = ?, insuree_id = ?, bundle_id = ?, is_confirmed = ?,
			is_new_insuree = ?, input_json = ?, is_deleted = ?
		WHERE id = ?`,
		d.ContractID, d.InsureeID, d.BundleID, d.IsConfirmed,
		d.IsNewInsuree, string(inputJSON), d.IsDeleted, d.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contract.ErrNotFound
	}
	return nil
}

func (s *Store) GetDetails(ctx context.Context, id contract.DetailsID) (*contract.ContractDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getDetails(ctx, s.db, id)
}

func (ts *txStore) GetDetails(ctx context.Context, id contract.DetailsID) (*contract.ContractDetails, error) {
	return ts.parent.getDetails(ctx, ts.tx, id)
}

func (s *Store) getDetails(ctx context.Context, q dbtx, id contract.DetailsID) (*contract.ContractDetails, error) {
	query := `SELECT ` + detailsColumns + ` FROM contract_details WHERE id = ? AND is_deleted = FALSE`
	details, err := s.queryDetails(ctx, q, query, id)
	if err != nil || len(details) == 0 {
		return nil, err
	}
	return details[0], nil
}

func (s *Store) DetailsByContract(ctx context.Context, id contract.ContractID, confirmedOnly bool) ([]*contract.ContractDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detailsByContract(ctx, s.db, id, confirmedOnly)
}

func (ts *txStore) DetailsByContract(ctx context.Context, id contract.ContractID, confirmedOnly bool) ([]*contract.ContractDetails, error) {
	return ts.parent.detailsByContract(ctx, ts.tx, id, confirmedOnly)
}

func (s *Store) detailsByContract(ctx context.Context, q dbtx, id contract.ContractID, confirmedOnly bool) ([]*contract.ContractDetails, error) {
	query := `SELECT ` + detailsColumns + ` FROM contract_details
		WHERE contract_id = ? AND is_deleted = FALSE`
	if confirmedOnly {
		query += ` AND is_confirmed = TRUE`
	}
	query += ` ORDER BY id ASC`
	return s.queryDetails(ctx, q, query, id)
}

func (s *Store) DetailsForInsuree(ctx context.Context, insuree contract.InsureeID, holder contract.PolicyHolderID, bundle contract.BundleID) ([]*contract.ContractDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detailsForInsuree(ctx, s.db, insuree, holder, bundle)
}

func (ts *txStore) DetailsForInsuree(ctx context.Context, insuree contract.InsureeID, holder contract.PolicyHolderID, bundle contract.BundleID) ([]*contract.ContractDetails, error) {
	return ts.parent.detailsForInsuree(ctx, ts.tx, insuree, holder, bundle)
}

func (s *Store) detailsForInsuree(ctx context.Context, q dbtx, insuree contract.InsureeID, holder contract.PolicyHolderID, bundle contract.BundleID) ([]*contract.ContractDetails, error) {
	query := `
		SELECT cd.id, cd.contract_id, cd.insuree_id, cd.bundle_id, cd.is_confirmed,
		       cd.is_new_insuree, cd.input_json, cd.date_created, cd.is_deleted
		FROM contract_details cd
		JOIN contracts c ON c.id = cd.contract_id
		WHERE cd.insuree_id = ? AND cd.bundle_id = ? AND c.policy_holder_id = ?
		  AND cd.is_deleted = FALSE AND c.is_deleted = FALSE
		ORDER BY cd.date_created DESC
	`
	return s.queryDetails(ctx, q, query, insuree, bundle, holder)
}

func (s *Store) queryDetails(ctx context.Context, q dbtx, query string, args ...any) ([]*contract.ContractDetails, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contract details: %w", err)
	}
	defer rows.Close()

	var details []*contract.ContractDetails
	for rows.Next() {
		var d contract.ContractDetails
		var inputJSON sql.NullString
		var created string
		if err := rows.Scan(&d.ID, &d.ContractID, &d.InsureeID, &d.BundleID,
			&d.IsConfirmed, &d.IsNewInsuree, &inputJSON, &created, &d.IsDeleted); err != nil {
			return nil, err
		}
		if inputJSON.Valid && inputJSON.String != "" {
			json.Unmarshal([]byte(inputJSON.String), &d.Input)
		}
		d.DateCreated = parseTime(created)
		details = append(details, &d)
	}
	return details, rows.Err()
}

// =============================================================================
// PLAN DETAILS STORE
// =============================================================================

const planDetailsColumns = `id, details_id, plan_id, policy_id, contribution_id,
	date_valid_from, date_valid_to, calculated_amount, is_deleted`

func (s *Store) CreatePlanDetails(ctx context.Context, p *contract.ContributionPlanDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createPlanDetails(ctx, s.db, p)
}

func (ts *txStore) CreatePlanDetails(ctx context.Context, p *contract.ContributionPlanDetails) error {
	return ts.parent.createPlanDetails(ctx, ts.tx, p)
}

func (s *Store) createPlanDetails(ctx context.Context, q dbtx, p *contract.ContributionPlanDetails) error {
	if p.ID == "" {
		id, err := s.nextID(ctx, q, "CCPD")
		if err != nil {
			return err
		}
		p.ID = contract.PlanDetailsID(id)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO contract_plan_details (`+planDetailsColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.DetailsID, p.PlanID, nullString(string(p.PolicyID)),
		nullString(string(p.ContributionID)),
		fmtTime(p.DateValidFrom), fmtTime(p.DateValidTo),
		p.CalculatedAmount.String(), p.IsDeleted,
	)
	if err != nil {
		return fmt.Errorf("failed to insert plan details: %w", err)
	}
	return nil
}

func (s *Store) UpdatePlanDetails(ctx context.Context, p *contract.ContributionPlanDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatePlanDetails(ctx, s.db, p)
}

func (ts *txStore) UpdatePlanDetails(ctx context.Context, p *contract.ContributionPlanDetails) error {
	return ts.parent.updatePlanDetails(ctx, ts.tx, p)
}

func (s *Store) updatePlanDetails(ctx context.Context, q dbtx, p *contract.ContributionPlanDetails) error {
	res, err := q.ExecContext(ctx, `
		UPDATE contract_plan_details SET
			details_id = ?, plan_id = ?, policy_id = ?, contribution_id = ?,
			date_valid_from = ?, date_valid_to = ?, calculated_amount = ?, is_deleted = ?
		WHERE id = ?`,
		p.DetailsID, p.PlanID, nullString(string(p.PolicyID)),
		nullString(string(p.ContributionID)),
		fmtTime(p.DateValidFrom), fmtTime(p.DateValidTo),
		p.CalculatedAmount.String(), p.IsDeleted, p.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contract.ErrNotFound
	}
	return nil
}

func (s *Store) GetPlanDetails(ctx context.Context, id contract.PlanDetailsID) (*contract.ContributionPlanDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getPlanDetails(ctx, s.db, id)
}

func (ts *txStore) GetPlanDetails(ctx context.Context, id contract.PlanDetailsID) (*contract.ContributionPlanDetails, error) {
	return ts.parent.getPlanDetails(ctx, ts.tx, id)
}

func (s *Store) getPlanDetails(ctx context.Context, q dbtx, id contract.PlanDetailsID) (*contract.ContributionPlanDetails, error) {
	query := `SELECT ` + planDetailsColumns + ` FROM contract_plan_details
		WHERE id = ? AND is_deleted = FALSE`
	units, err := s.queryPlanDetails(ctx, q, query, id)
	if err != nil || len(units) == 0 {
		return nil, err
	}
	return units[0], nil
}

func (s *Store) PlanDetailsByContract(ctx context.Context, id contract.ContractID) ([]*contract.ContributionPlanDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.planDetailsByContract(ctx, s.db, id)
}

func (ts *txStore) PlanDetailsByContract(ctx context.Context, id contract.ContractID) ([]*contract.ContributionPlanDetails, error) {
	return ts.parent.planDetailsByContract(ctx, ts.tx, id)
}

func (s *Store) planDetailsByContract(ctx context.Context, q dbtx, id contract.ContractID) ([]*contract.ContributionPlanDetails, error) {
	query := `
		SELECT p.id, p.details_id, p.plan_id, p.policy_id, p.contribution_id,
		       p.date_valid_from, p.date_valid_to, p.calculated_amount, p.is_deleted
		FROM contract_plan_details p
		JOIN contract_details cd ON cd.id = p.details_id
		WHERE cd.contract_id = ? AND p.is_deleted = FALSE
		ORDER BY p.id ASC
	`
	return s.queryPlanDetails(ctx, q, query, id)
}

func (s *Store) PlanDetailsByDetails(ctx context.Context, id contract.DetailsID) ([]*contract.ContributionPlanDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.planDetailsByDetails(ctx, s.db, id)
}

func (ts *txStore) PlanDetailsByDetails(ctx context.Context, id contract.DetailsID) ([]*contract.ContributionPlanDetails, error) {
	return ts.parent.planDetailsByDetails(ctx, ts.tx, id)
}

func (s *Store) planDetailsByDetails(ctx context.Context, q dbtx, id contract.DetailsID) ([]*contract.ContributionPlanDetails, error) {
	query := `SELECT ` + planDetailsColumns + ` FROM contract_plan_details
		WHERE details_id = ? AND is_deleted = FALSE
		ORDER BY id ASC`
	return s.queryPlanDetails(ctx, q, query, id)
}

func (s *Store) PlanDetailsByContribution(ctx context.Context, id contract.ContributionID) (*contract.ContributionPlanDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.planDetailsByContribution(ctx, s.db, id)
}

func (ts *txStore) PlanDetailsByContribution(ctx context.Context, id contract.ContributionID) (*contract.ContributionPlanDetails, error) {
	return ts.parent.planDetailsByContribution(ctx, ts.tx, id)
}

func (s *Store) planDetailsByContribution(ctx context.Context, q dbtx, id contract.ContributionID) (*contract.ContributionPlanDetails, error) {
	query := `SELECT ` + planDetailsColumns + ` FROM contract_plan_details
		WHERE contribution_id = ? AND is_deleted = FALSE`
	units, err := s.queryPlanDetails(ctx, q, query, id)
	if err != nil || len(units) == 0 {
		return nil, err
	}
	return units[0], nil
}

func (s *Store) queryPlanDetails(ctx context.Context, q dbtx, query string, args ...any) ([]*contract.ContributionPlanDetails, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plan details: %w", err)
	}
	defer rows.Close()

	var units []*contract.ContributionPlanDetails
	for rows.Next() {
		var p contract.ContributionPlanDetails
		var policyID, contributionID sql.NullString
		var from, to, amount string
		if err := rows.Scan(&p.ID, &p.DetailsID, &p.PlanID, &policyID, &contributionID,
			&from, &to, &amount, &p.IsDeleted); err != nil {
			return nil, err
		}
		p.PolicyID = contract.PolicyID(policyID.String)
		p.ContributionID = contract.ContributionID(contributionID.String)
		p.DateValidFrom = parseTime(from)
		p.DateValidTo = parseTime(to)
		p.CalculatedAmount = mustDecimal(amount)
		units = append(units, &p)
	}
	return units, rows.Err()
}

// =============================================================================
// POLICY STORE
// =============================================================================

const policyColumns = `id, family_id, product_id, status, stage, enroll_date, start_date,
	effective_date, expiry_date, validity_from, validity_to`

func (s *Store) CreatePolicy(ctx context.Context, p *contract.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createPolicy(ctx, s.db, p)
}

func (ts *txStore) CreatePolicy(ctx context.Context, p *contract.Policy) error {
	return ts.parent.createPolicy(ctx, ts.tx, p)
}

func (s *Store) createPolicy(ctx context.Context, q dbtx, p *contract.Policy) error {
	if p.ID == "" {
		id, err := s.nextID(ctx, q, "POL")
		if err != nil {
			return err
		}
		p.ID = contract.PolicyID(id)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO policies (`+policyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.FamilyID, p.ProductID, p.Status, p.Stage,
		fmtTime(p.EnrollDate), fmtTime(p.StartDate), fmtTime(p.EffectiveDate),
		fmtTime(p.ExpiryDate), fmtTime(p.ValidityFrom), fmtTimePtr(p.ValidityTo),
	)
	if err != nil {
		return fmt.Errorf("failed to insert policy: %w", err)
	}
	return nil
}

func (s *Store) UpdatePolicy(ctx context.Context, p *contract.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatePolicy(ctx, s.db, p)
}

func (ts *txStore) UpdatePolicy(ctx context.Context, p *contract.Policy) error {
	return ts.parent.updatePolicy(ctx, ts.tx, p)
}

func (s *Store) updatePolicy(ctx context.Context, q dbtx, p *contract.Policy) error {
	res, err := q.ExecContext(ctx, `
		UPDATE policies SET
			family_id = ?, product_id = ?, status = ?, stage = ?,
			enroll_date = ?, start_date = ?, effective_date = ?, expiry_date = ?,
			validity_from = ?, validity_to = ?
		WHERE id = ?`,
		p.FamilyID, p.ProductID, p.Status, p.Stage,
		fmtTime(p.EnrollDate), fmtTime(p.StartDate), fmtTime(p.EffectiveDate),
		fmtTime(p.ExpiryDate), fmtTime(p.ValidityFrom), fmtTimePtr(p.ValidityTo),
		p.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contract.ErrNotFound
	}
	return nil
}

func (s *Store) GetPolicy(ctx context.Context, id contract.PolicyID) (*contract.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getPolicy(ctx, s.db, id)
}

func (ts *txStore) GetPolicy(ctx context.Context, id contract.PolicyID) (*contract.Policy, error) {
	return ts.parent.getPolicy(ctx, ts.tx, id)
}

func (s *Store) getPolicy(ctx context.Context, q dbtx, id contract.PolicyID) (*contract.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies WHERE id = ?`
	policies, err := s.queryPolicies(ctx, q, query, id)
	if err != nil || len(policies) == 0 {
		return nil, err
	}
	return policies[0], nil
}

func (s *Store) FamilyHasPolicy(ctx context.Context, id contract.FamilyID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.familyHasPolicy(ctx, s.db, id)
}

func (ts *txStore) FamilyHasPolicy(ctx context.Context, id contract.FamilyID) (bool, error) {
	return ts.parent.familyHasPolicy(ctx, ts.tx, id)
}

func (s *Store) familyHasPolicy(ctx context.Context, q dbtx, id contract.FamilyID) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM policies WHERE family_id = ?", id).Scan(&count)
	return count > 0, err
}

func (s *Store) PoliciesForFamilyProduct(ctx context.Context, family contract.FamilyID, product contract.ProductID, from, to time.Time) ([]*contract.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policiesForFamilyProduct(ctx, s.db, family, product, from, to)
}

func (ts *txStore) PoliciesForFamilyProduct(ctx context.Context, family contract.FamilyID, product contract.ProductID, from, to time.Time) ([]*contract.Policy, error) {
	return ts.parent.policiesForFamilyProduct(ctx, ts.tx, family, product, from, to)
}

func (s *Store) policiesForFamilyProduct(ctx context.Context, q dbtx, family contract.FamilyID, product contract.ProductID, from, to time.Time) ([]*contract.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies
		WHERE family_id = ? AND product_id = ?
		  AND start_date <= ? AND expiry_date >= ?
		ORDER BY start_date ASC`
	return s.queryPolicies(ctx, q, query, family, product, fmtTime(to), fmtTime(from))
}

func (s *Store) queryPolicies(ctx context.Context, q dbtx, query string, args ...any) ([]*contract.Policy, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var policies []*contract.Policy
	for rows.Next() {
		var p contract.Policy
		var enroll, start, effective, expiry, validFrom string
		var validTo sql.NullString
		if err := rows.Scan(&p.ID, &p.FamilyID, &p.ProductID, &p.Status, &p.Stage,
			&enroll, &start, &effective, &expiry, &validFrom, &validTo); err != nil {
			return nil, err
		}
		p.EnrollDate = parseTime(enroll)
		p.StartDate = parseTime(start)
		p.EffectiveDate = parseTime(effective)
		p.ExpiryDate = parseTime(expiry)
		p.ValidityFrom = parseTime(validFrom)
		p.ValidityTo = parseTimePtr(validTo)
		policies = append(policies, &p)
	}
	return policies, rows.Err()
}

func (s *Store) CreateContractPolicy(ctx context.Context, cp *contract.ContractPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createContractPolicy(ctx, s.db, cp)
}

func (ts *txStore) CreateContractPolicy(ctx context.Context, cp *contract.ContractPolicy) error {
	return ts.parent.createContractPolicy(ctx, ts.tx, cp)
}

func (s *Store) createContractPolicy(ctx context.Context, q dbtx, cp *contract.ContractPolicy) error {
	if cp.ID == "" {
		id, err := s.nextID(ctx, q, "CP")
		if err != nil {
			return err
		}
		cp.ID = id
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO contract_policies (id, contract_id, policy_id, insuree_id, policy_holder_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.ContractID, cp.PolicyID, cp.InsureeID, cp.PolicyHolderID,
		fmtTime(cp.CreatedAt),
	)
	return err
}

func (s *Store) CreateInsureePolicy(ctx context.Context, ip *contract.InsureePolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createInsureePolicy(ctx, s.db, ip)
}

func (ts *txStore) CreateInsureePolicy(ctx context.Context, ip *contract.InsureePolicy) error {
	return ts.parent.createInsureePolicy(ctx, ts.tx, ip)
}

func (s *Store) createInsureePolicy(ctx context.Context, q dbtx, ip *contract.InsureePolicy) error {
	if ip.ID == "" {
		id, err := s.nextID(ctx, q, "IP")
		if err != nil {
			return err
		}
		ip.ID = id
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO insuree_policies (id, insuree_id, policy_id, enrollment_date, start_date, effective_date, expiry_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ip.ID, ip.InsureeID, ip.PolicyID,
		fmtTime(ip.EnrollmentDate), fmtTime(ip.StartDate),
		fmtTime(ip.EffectiveDate), fmtTime(ip.ExpiryDate),
	)
	return err
}

func (s *Store) GetWaitingPeriod(ctx context.Context, insuree contract.InsureeID, holder contract.PolicyHolderID) (*contract.InsureeWaitingPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getWaitingPeriod(ctx, s.db, insuree, holder)
}

func (ts *txStore) GetWaitingPeriod(ctx context.Context, insuree contract.InsureeID, holder contract.PolicyHolderID) (*contract.InsureeWaitingPeriod, error) {
	return ts.parent.getWaitingPeriod(ctx, ts.tx, insuree, holder)
}

func (s *Store) getWaitingPeriod(ctx context.Context, q dbtx, insuree contract.InsureeID, holder contract.PolicyHolderID) (*contract.InsureeWaitingPeriod, error) {
	var wp contract.InsureeWaitingPeriod
	var planID sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT id, policy_holder_id, policy_holder_plan_id, insuree_id, waiting_period, periodicity
		FROM insuree_waiting_periods
		WHERE insuree_id = ? AND policy_holder_id = ?`,
		insuree, holder,
	).Scan(&wp.ID, &wp.PolicyHolderID, &planID, &wp.InsureeID, &wp.WaitingPeriod, &wp.Periodicity)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	wp.PolicyHolderPlanID = planID.String
	return &wp, nil
}

func (s *Store) UpdateWaitingPeriod(ctx context.Context, wp *contract.InsureeWaitingPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateWaitingPeriod(ctx, s.db, wp)
}

func (ts *txStore) UpdateWaitingPeriod(ctx context.Context, wp *contract.InsureeWaitingPeriod) error {
	return ts.parent.updateWaitingPeriod(ctx, ts.tx, wp)
}

func (s *Store) updateWaitingPeriod(ctx context.Context, q dbtx, wp *contract.InsureeWaitingPeriod) error {
	res, err := q.ExecContext(ctx, `
		UPDATE insuree_waiting_periods SET
			policy_holder_id = ?, policy_holder_plan_id = ?, insuree_id = ?,
			waiting_period = ?, periodicity = ?
		WHERE id = ?`,
		wp.PolicyHolderID, nullString(wp.PolicyHolderPlanID), wp.InsureeID,
		wp.WaitingPeriod, wp.Periodicity, wp.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contract.ErrNotFound
	}
	return nil
}

// SaveWaitingPeriod inserts or replaces a waiting-period record (seeding).
func (s *Store) SaveWaitingPeriod(ctx context.Context, wp contract.InsureeWaitingPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if wp.ID == "" {
		id, err := s.nextID(ctx, s.db, "WP")
		if err != nil {
			return err
		}
		wp.ID = id
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO insuree_waiting_periods (id, policy_holder_id, policy_holder_plan_id, insuree_id, waiting_period, periodicity)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			waiting_period = excluded.waiting_period,
			periodicity = excluded.periodicity`,
		wp.ID, wp.PolicyHolderID, nullString(wp.PolicyHolderPlanID), wp.InsureeID,
		wp.WaitingPeriod, wp.Periodicity,
	)
	return err
}

// =============================================================================
// PAYMENT STORE
// =============================================================================

const paymentColumns = `id, contract_id, expected_amount, received_amount, request_date,
	received_date, payment_code, payment_reference`

func (s *Store) CreatePayment(ctx context.Context, p *contract.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createPayment(ctx, s.db, p)
}

func (ts *txStore) CreatePayment(ctx context.Context, p *contract.Payment) error {
	return ts.parent.createPayment(ctx, ts.tx, p)
}

func (s *Store) createPayment(ctx context.Context, q dbtx, p *contract.Payment) error {
	if p.ID == "" {
		id, err := s.nextID(ctx, q, "PAY")
		if err != nil {
			return err
		}
		p.ID = contract.PaymentID(id)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ContractID, p.ExpectedAmount.String(), p.ReceivedAmount.String(),
		fmtTime(p.RequestDate), fmtTimePtr(p.ReceivedDate),
		p.PaymentCode, p.PaymentReference,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (s *Store) UpdatePayment(ctx context.Context, p *contract.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatePayment(ctx, s.db, p)
}

func (ts *txStore) UpdatePayment(ctx context.Context, p *contract.Payment) error {
	return ts.parent.updatePayment(ctx, ts.tx, p)
}

func (s *Store) updatePayment(ctx context.Context, q dbtx, p *contract.Payment) error {
	res, err := q.ExecContext(ctx, `
		UPDATE payments SET
			contract_id = ?, expected_amount = ?, received_amount = ?,
			request_date = ?, received_date = ?, payment_code = ?, payment_reference = ?
		WHERE id = ?`,
		p.ContractID, p.ExpectedAmount.String(), p.ReceivedAmount.String(),
		fmtTime(p.RequestDate), fmtTimePtr(p.ReceivedDate),
		p.PaymentCode, p.PaymentReference, p.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contract.ErrNotFound
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id contract.PaymentID) (*contract.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getPayment(ctx, s.db, id)
}

func (ts *txStore) GetPayment(ctx context.Context, id contract.PaymentID) (*contract.Payment, error) {
	return ts.parent.getPayment(ctx, ts.tx, id)
}

func (s *Store) getPayment(ctx context.Context, q dbtx, id contract.PaymentID) (*contract.Payment, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func scanPayment(row *sql.Row) (*contract.Payment, error) {
	var p contract.Payment
	var expected, received, requestDate string
	var receivedDate, code, ref sql.NullString
	err := row.Scan(&p.ID, &p.ContractID, &expected, &received, &requestDate,
		&receivedDate, &code, &ref)
	if err != nil {
		return nil, err
	}
	p.ExpectedAmount = mustDecimal(expected)
	p.ReceivedAmount = mustDecimal(received)
	p.RequestDate = parseTime(requestDate)
	p.ReceivedDate = parseTimePtr(receivedDate)
	p.PaymentCode = code.String
	p.PaymentReference = ref.String
	return &p, nil
}

func (s *Store) CreatePaymentDetail(ctx context.Context, pd *contract.PaymentDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createPaymentDetail(ctx, s.db, pd)
}

func (ts *txStore) CreatePaymentDetail(ctx context.Context, pd *contract.PaymentDetail) error {
	return ts.parent.createPaymentDetail(ctx, ts.tx, pd)
}

func (s *Store) createPaymentDetail(ctx context.Context, q dbtx, pd *contract.PaymentDetail) error {
	if pd.ID == "" {
		id, err := s.nextID(ctx, q, "PD")
		if err != nil {
			return err
		}
		pd.ID = id
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO payment_details (id, payment_id, product_code, insurance_number, expected_amount, contribution_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		pd.ID, pd.PaymentID, pd.ProductCode, pd.InsuranceNumber,
		pd.ExpectedAmount.String(), nullString(string(pd.ContributionID)),
	)
	return err
}

func (s *Store) PaymentDetailsByPayment(ctx context.Context, id contract.PaymentID) ([]*contract.PaymentDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paymentDetailsByPayment(ctx, s.db, id)
}

func (ts *txStore) PaymentDetailsByPayment(ctx context.Context, id contract.PaymentID) ([]*contract.PaymentDetail, error) {
	return ts.parent.paymentDetailsByPayment(ctx, ts.tx, id)
}

func (s *Store) paymentDetailsByPayment(ctx context.Context, q dbtx, id contract.PaymentID) ([]*contract.PaymentDetail, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, payment_id, product_code, insurance_number, expected_amount, contribution_id
		FROM payment_details WHERE payment_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []*contract.PaymentDetail
	for rows.Next() {
		var pd contract.PaymentDetail
		var productCode, insuranceNumber, contributionID sql.NullString
		var expected string
		if err := rows.Scan(&pd.ID, &pd.PaymentID, &productCode, &insuranceNumber,
			&expected, &contributionID); err != nil {
			return nil, err
		}
		pd.ProductCode = productCode.String
		pd.InsuranceNumber = insuranceNumber.String
		pd.ExpectedAmount = mustDecimal(expected)
		pd.ContributionID = contract.ContributionID(contributionID.String)
		details = append(details, &pd)
	}
	return details, rows.Err()
}

func (s *Store) PaymentForContribution(ctx context.Context, id contract.ContributionID) (*contract.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paymentForContribution(ctx, s.db, id)
}

func (ts *txStore) PaymentForContribution(ctx context.Context, id contract.ContributionID) (*contract.Payment, error) {
	return ts.parent.paymentForContribution(ctx, ts.tx, id)
}

func (s *Store) paymentForContribution(ctx context.Context, q dbtx, id contract.ContributionID) (*contract.Payment, error) {
	row := q.QueryRowContext(ctx, `
		SELECT p.id, p.contract_id, p.expected_amount, p.received_amount, p.request_date,
		       p.received_date, p.payment_code, p.payment_reference
		FROM payments p
		JOIN payment_details pd ON pd.payment_id = p.id
		WHERE pd.contribution_id = ?
		LIMIT 1`, id)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (s *Store) CreateContribution(ctx context.Context, c *contract.Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createContribution(ctx, s.db, c)
}

func (ts *txStore) CreateContribution(ctx context.Context, c *contract.Contribution) error {
	return ts.parent.createContribution(ctx, ts.tx, c)
}

func (s *Store) createContribution(ctx context.Context, q dbtx, c *contract.Contribution) error {
	if c.ID == "" {
		id, err := s.nextID(ctx, q, "PR")
		if err != nil {
			return err
		}
		c.ID = contract.ContributionID(id)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO contributions (id, policy_id, amount, pay_date, pay_type)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.PolicyID, c.Amount.String(), fmtTime(c.PayDate), c.PayType,
	)
	return err
}

func (s *Store) GetContribution(ctx context.Context, id contract.ContributionID) (*contract.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getContribution(ctx, s.db, id)
}

func (ts *txStore) GetContribution(ctx context.Context, id contract.ContributionID) (*contract.Contribution, error) {
	return ts.parent.getContribution(ctx, ts.tx, id)
}

func (s *Store) getContribution(ctx context.Context, q dbtx, id contract.ContributionID) (*contract.Contribution, error) {
	var c contract.Contribution
	var amount, payDate string
	var payType sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT id, policy_id, amount, pay_date, pay_type FROM contributions WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.PolicyID, &amount, &payDate, &payType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Amount = mustDecimal(amount)
	c.PayDate = parseTime(payDate)
	c.PayType = payType.String
	return &c, nil
}

// =============================================================================
// REFERENCE STORE
// =============================================================================

func (s *Store) GetPolicyHolder(ctx context.Context, id contract.PolicyHolderID) (*contract.PolicyHolder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getPolicyHolder(ctx, s.db, id)
}

func (ts *txStore) GetPolicyHolder(ctx context.Context, id contract.PolicyHolderID) (*contract.PolicyHolder, error) {
	return ts.parent.getPolicyHolder(ctx, ts.tx, id)
}

func (s *Store) getPolicyHolder(ctx context.Context, q dbtx, id contract.PolicyHolderID) (*contract.PolicyHolder, error) {
	var h contract.PolicyHolder
	var tradeName, contactName, email, locationID sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT id, code, trade_name, contact_name, email, location_id
		FROM policy_holders WHERE id = ?`, id,
	).Scan(&h.ID, &h.Code, &tradeName, &contactName, &email, &locationID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	h.TradeName = tradeName.String
	h.ContactName = contactName.String
	h.Email = email.String
	h.LocationID = contract.LocationID(locationID.String)
	return &h, nil
}

// SavePolicyHolder inserts or updates a policy holder (seeding).
func (s *Store) SavePolicyHolder(ctx context.Context, h contract.PolicyHolder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policy_holders (id, code, trade_name, contact_name, email, location_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			trade_name = excluded.trade_name,
			contact_name = excluded.contact_name,
			email = excluded.email,
			location_id = excluded.location_id`,
		h.ID, h.Code, h.TradeName, h.ContactName, h.Email, h.LocationID,
	)
	return err
}

func (s *Store) GetLocation(ctx context.Context, id contract.LocationID) (*contract.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocation(ctx, s.db, id)
}

func (ts *txStore) GetLocation(ctx context.Context, id contract.LocationID) (*contract.Location, error) {
	return ts.parent.getLocation(ctx, ts.tx, id)
}

func (s *Store) getLocation(ctx context.Context, q dbtx, id contract.LocationID) (*contract.Location, error) {
	var l contract.Location
	var parentID sql.NullString
	err := q.QueryRowContext(ctx,
		"SELECT id, name, type, parent_id FROM locations WHERE id = ?", id,
	).Scan(&l.ID, &l.Name, &l.Type, &parentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.ParentID = contract.LocationID(parentID.String)
	return &l, nil
}

// SaveLocation inserts or updates a location (seeding).
func (s *Store) SaveLocation(ctx context.Context, l contract.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO locations (id, name, type, parent_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			parent_id = excluded.parent_id`,
		l.ID, l.Name, l.Type, nullString(string(l.ParentID)),
	)
	return err
}

func (s *Store) GetInsuree(ctx context.Context, id contract.InsureeID) (*contract.Insuree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getInsuree(ctx, s.db, id)
}

func (ts *txStore) GetInsuree(ctx context.Context, id contract.InsureeID) (*contract.Insuree, error) {
	return ts.parent.getInsuree(ctx, ts.tx, id)
}

func (s *Store) getInsuree(ctx context.Context, q dbtx, id contract.InsureeID) (*contract.Insuree, error) {
	var i contract.Insuree
	var familyID, otherNames, lastName sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT id, insurance_number, family_id, other_names, last_name
		FROM insurees WHERE id = ?`, id,
	).Scan(&i.ID, &i.InsuranceNumber, &familyID, &otherNames, &lastName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	i.FamilyID = contract.FamilyID(familyID.String)
	i.OtherNames = otherNames.String
	i.LastName = lastName.String
	return &i, nil
}

// SaveInsuree inserts or updates an insuree (seeding).
func (s *Store) SaveInsuree(ctx context.Context, i contract.Insuree) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO insurees (id, insurance_number, family_id, other_names, last_name)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			insurance_number = excluded.insurance_number,
			family_id = excluded.family_id,
			other_names = excluded.other_names,
			last_name = excluded.last_name`,
		i.ID, i.InsuranceNumber, i.FamilyID, i.OtherNames, i.LastName,
	)
	return err
}

func (s *Store) GetProduct(ctx context.Context, id contract.ProductID) (*contract.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getProduct(ctx, s.db, id)
}

func (ts *txStore) GetProduct(ctx context.Context, id contract.ProductID) (*contract.Product, error) {
	return ts.parent.getProduct(ctx, ts.tx, id)
}

func (s *Store) getProduct(ctx context.Context, q dbtx, id contract.ProductID) (*contract.Product, error) {
	var p contract.Product
	var configJSON sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT id, code, insurance_period, policy_waiting_period, config_json
		FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Code, &p.InsurancePeriod, &p.PolicyWaitingPeriod, &configJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if configJSON.Valid && configJSON.String != "" {
		var cfg contract.ProductConfig
		if err := json.Unmarshal([]byte(configJSON.String), &cfg); err == nil {
			p.Config = &cfg
		}
	}
	return &p, nil
}

// SaveProduct inserts or updates a product (seeding).
func (s *Store) SaveProduct(ctx context.Context, p contract.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var configJSON any
	if p.Config != nil {
		b, _ := json.Marshal(p.Config)
		configJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, code, insurance_period, policy_waiting_period, config_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			insurance_period = excluded.insurance_period,
			policy_waiting_period = excluded.policy_waiting_period,
			config_json = excluded.config_json`,
		p.ID, p.Code, p.InsurancePeriod, p.PolicyWaitingPeriod, configJSON,
	)
	return err
}

func (s *Store) GetPlan(ctx context.Context, id contract.PlanID) (*contract.ContributionPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getPlan(ctx, s.db, id)
}

func (ts *txStore) GetPlan(ctx context.Context, id contract.PlanID) (*contract.ContributionPlan, error) {
	return ts.parent.getPlan(ctx, ts.tx, id)
}

func (s *Store) getPlan(ctx context.Context, q dbtx, id contract.PlanID) (*contract.ContributionPlan, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, code, name, periodicity, product_id, calc_rule, employer_contribution, employee_contribution
		FROM contribution_plans WHERE id = ?`, id)
	return scanPlan(row)
}

func scanPlan(row *sql.Row) (*contract.ContributionPlan, error) {
	var p contract.ContributionPlan
	var name, calcRule sql.NullString
	var employer, employee string
	err := row.Scan(&p.ID, &p.Code, &name, &p.Periodicity, &p.ProductID,
		&calcRule, &employer, &employee)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Name = name.String
	p.CalcRule = calcRule.String
	p.EmployerContribution = mustDecimal(employer)
	p.EmployeeContribution = mustDecimal(employee)
	return &p, nil
}

// SavePlan inserts or updates a contribution plan (seeding).
func (s *Store) SavePlan(ctx context.Context, p contract.ContributionPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contribution_plans (id, code, name, periodicity, product_id, calc_rule, employer_contribution, employee_contribution)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			periodicity = excluded.periodicity,
			product_id = excluded.product_id,
			calc_rule = excluded.calc_rule,
			employer_contribution = excluded.employer_contribution,
			employee_contribution = excluded.employee_contribution`,
		p.ID, p.Code, p.Name, p.Periodicity, p.ProductID, p.CalcRule,
		p.EmployerContribution.String(), p.EmployeeContribution.String(),
	)
	return err
}

func (s *Store) GetBundle(ctx context.Context, id contract.BundleID) (*contract.ContributionPlanBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getBundle(ctx, s.db, id)
}

func (ts *txStore) GetBundle(ctx context.Context, id contract.BundleID) (*contract.ContributionPlanBundle, error) {
	return ts.parent.getBundle(ctx, ts.tx, id)
}

func (s *Store) getBundle(ctx context.Context, q dbtx, id contract.BundleID) (*contract.ContributionPlanBundle, error) {
	var b contract.ContributionPlanBundle
	var name sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT id, code, name, periodicity FROM contribution_plan_bundles WHERE id = ?`, id,
	).Scan(&b.ID, &b.Code, &name, &b.Periodicity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.Name = name.String
	return &b, nil
}

// SaveBundle inserts or updates a bundle and its plan membership (seeding).
func (s *Store) SaveBundle(ctx context.Context, b contract.ContributionPlanBundle, plans ...contract.PlanID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contribution_plan_bundles (id, code, name, periodicity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			periodicity = excluded.periodicity`,
		b.ID, b.Code, b.Name, b.Periodicity,
	)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM bundle_details WHERE bundle_id = ?", b.ID); err != nil {
		return err
	}
	for i, planID := range plans {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO bundle_details (id, bundle_id, plan_id) VALUES (?, ?, ?)`,
			fmt.Sprintf("%s-%d", b.ID, i), b.ID, planID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) BundlePlans(ctx context.Context, id contract.BundleID) ([]*contract.ContributionPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bundlePlans(ctx, s.db, id)
}

func (ts *txStore) BundlePlans(ctx context.Context, id contract.BundleID) ([]*contract.ContributionPlan, error) {
	return ts.parent.bundlePlans(ctx, ts.tx, id)
}

func (s *Store) bundlePlans(ctx context.Context, q dbtx, id contract.BundleID) ([]*contract.ContributionPlan, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT p.id, p.code, p.name, p.periodicity, p.product_id, p.calc_rule,
		       p.employer_contribution, p.employee_contribution
		FROM contribution_plans p
		JOIN bundle_details bd ON bd.plan_id = p.id
		WHERE bd.bundle_id = ?
		ORDER BY bd.id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*contract.ContributionPlan
	for rows.Next() {
		var p contract.ContributionPlan
		var name, calcRule sql.NullString
		var employer, employee string
		if err := rows.Scan(&p.ID, &p.Code, &name, &p.Periodicity, &p.ProductID,
			&calcRule, &employer, &employee); err != nil {
			return nil, err
		}
		p.Name = name.String
		p.CalcRule = calcRule.String
		p.EmployerContribution = mustDecimal(employer)
		p.EmployeeContribution = mustDecimal(employee)
		plans = append(plans, &p)
	}
	return plans, rows.Err()
}

func (s *Store) PolicyHolderInsurees(ctx context.Context, id contract.PolicyHolderID) ([]*contract.PolicyHolderInsuree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policyHolderInsurees(ctx, s.db, id)
}

func (ts *txStore) PolicyHolderInsurees(ctx context.Context, id contract.PolicyHolderID) ([]*contract.PolicyHolderInsuree, error) {
	return ts.parent.policyHolderInsurees(ctx, ts.tx, id)
}

func (s *Store) policyHolderInsurees(ctx context.Context, q dbtx, id contract.PolicyHolderID) ([]*contract.PolicyHolderInsuree, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, policy_holder_id, insuree_id, bundle_id, last_policy_id, input_json, is_deleted
		FROM policy_holder_insurees
		WHERE policy_holder_id = ?
		ORDER BY id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roster []*contract.PolicyHolderInsuree
	for rows.Next() {
		var phi contract.PolicyHolderInsuree
		var bundleID, lastPolicyID, inputJSON sql.NullString
		if err := rows.Scan(&phi.ID, &phi.PolicyHolder, &phi.InsureeID,
			&bundleID, &lastPolicyID, &inputJSON, &phi.IsDeleted); err != nil {
			return nil, err
		}
		phi.BundleID = contract.BundleID(bundleID.String)
		phi.LastPolicyID = contract.PolicyID(lastPolicyID.String)
		if inputJSON.Valid && inputJSON.String != "" {
			json.Unmarshal([]byte(inputJSON.String), &phi.Input)
		}
		roster = append(roster, &phi)
	}
	return roster, rows.Err()
}

// SavePolicyHolderInsuree inserts or updates a roster entry (seeding).
func (s *Store) SavePolicyHolderInsuree(ctx context.Context, phi contract.PolicyHolderInsuree) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if phi.ID == "" {
		id, err := s.nextID(ctx, s.db, "PHI")
		if err != nil {
			return err
		}
		phi.ID = id
	}

	inputJSON, _ := json.Marshal(phi.Input)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policy_holder_insurees (id, policy_holder_id, insuree_id, bundle_id, last_policy_id, input_json, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			bundle_id = excluded.bundle_id,
			last_policy_id = excluded.last_policy_id,
			input_json = excluded.input_json,
			is_deleted = excluded.is_deleted`,
		phi.ID, phi.PolicyHolder, phi.InsureeID,
		nullString(string(phi.BundleID)), nullString(string(phi.LastPolicyID)),
		string(inputJSON), phi.IsDeleted,
	)
	return err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"contracts", "contract_details", "contract_plan_details",
		"policies", "contract_policies", "insuree_policies", "insuree_waiting_periods",
		"payments", "payment_details", "contributions",
		"policy_holders", "locations", "insurees", "products",
		"contribution_plans", "contribution_plan_bundles", "bundle_details",
		"policy_holder_insurees", "sequences",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func mustDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

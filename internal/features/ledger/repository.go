// Package ledger — repository.go выполняет операции с таблицами accounts,
// ledger_transactions, rewards и owned_rewards в PostgreSQL.
// Все изменения баланса выполняются в транзакции с блокировкой строки (FOR UPDATE).
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/geohealth/internal/common"
)

// Repository — реализация Store поверх pgxpool.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий леджера.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const accountColumns = `
	id, total_reputation, monthly_reputation, points_balance, level,
	unique_review_count, spam_count, banned, banned_until, created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(
		&a.ID, &a.TotalReputation, &a.MonthlyReputation, &a.PointsBalance, &a.Level,
		&a.UniqueReviewCount, &a.SpamCount, &a.Banned, &a.BannedUntil,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAccount создаёт счёт, если его ещё нет, и возвращает текущее состояние.
func (r *Repository) CreateAccount(ctx context.Context, accountID int64) (*Account, error) {
	query := `
		INSERT INTO accounts (id, total_reputation, monthly_reputation, points_balance, level)
		VALUES ($1, 0, 0, 0, 1)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, accountID); err != nil {
		return nil, fmt.Errorf("ошибка создания аккаунта: %w", err)
	}
	return r.GetAccount(ctx, accountID)
}

// GetAccount возвращает счёт или common.ErrAccountNotFound.
func (r *Repository) GetAccount(ctx context.Context, accountID int64) (*Account, error) {
	query := `SELECT` + accountColumns + ` FROM accounts WHERE id = $1`
	a, err := scanAccount(r.db.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account_id=%d: %w", accountID, common.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения аккаунта (account_id=%d): %w", accountID, err)
	}
	return a, nil
}

// ListAccounts возвращает все счета в порядке создания.
func (r *Repository) ListAccounts(ctx context.Context) ([]*Account, error) {
	query := `SELECT` + accountColumns + ` FROM accounts ORDER BY created_at, id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения аккаунтов: %w", err)
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// Mutate блокирует строку аккаунта, применяет fn и записывает журнал.
// Либо всё, либо ничего.
func (r *Repository) Mutate(ctx context.Context, accountID int64, fn MutateFunc) ([]*Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	acc, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	entries, err := fn(acc)
	if err != nil {
		return nil, err
	}

	if err := saveAccount(ctx, tx, acc); err != nil {
		return nil, err
	}
	for _, e := range entries {
		e.AccountID = accountID
		if err := insertTransaction(ctx, tx, e); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка коммита: %w", err)
	}
	return entries, nil
}

func lockAccount(ctx context.Context, tx pgx.Tx, accountID int64) (*Account, error) {
	query := `SELECT` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	acc, err := scanAccount(tx.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account_id=%d: %w", accountID, common.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("ошибка блокировки аккаунта: %w", err)
	}
	return acc, nil
}

func saveAccount(ctx context.Context, tx pgx.Tx, a *Account) error {
	_, err := tx.Exec(ctx, `
		UPDATE accounts
		SET total_reputation = $2, monthly_reputation = $3, points_balance = $4, level = $5,
		    unique_review_count = $6, spam_count = $7, banned = $8, banned_until = $9,
		    updated_at = NOW()
		WHERE id = $1
	`, a.ID, a.TotalReputation, a.MonthlyReputation, a.PointsBalance, a.Level,
		a.UniqueReviewCount, a.SpamCount, a.Banned, a.BannedUntil)
	if err != nil {
		return fmt.Errorf("ошибка сохранения аккаунта: %w", err)
	}
	return nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t *Transaction) error {
	metadata := t.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO ledger_transactions
		    (account_id, direction, amount, reason, linked_report_id, balance_after, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, t.AccountID, string(t.Direction), t.Amount, t.Reason, t.LinkedReportID,
		t.BalanceAfter, t.Description, metadata, t.CreatedAt).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("ошибка записи транзакции: %w", err)
	}
	return nil
}

// CreateReward добавляет позицию в каталог.
func (r *Repository) CreateReward(ctx context.Context, rw *Reward) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO rewards (title, points_cost, stock, sold, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, rw.Title, rw.PointsCost, rw.Stock, rw.Sold, rw.Active).Scan(&rw.ID, &rw.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания награды: %w", err)
	}
	return nil
}

const rewardColumns = ` id, title, points_cost, stock, sold, active, created_at`

func scanReward(row pgx.Row) (*Reward, error) {
	var rw Reward
	if err := row.Scan(&rw.ID, &rw.Title, &rw.PointsCost, &rw.Stock, &rw.Sold, &rw.Active, &rw.CreatedAt); err != nil {
		return nil, err
	}
	return &rw, nil
}

// GetReward возвращает награду или common.ErrRewardUnavailable, если её нет.
func (r *Repository) GetReward(ctx context.Context, rewardID int64) (*Reward, error) {
	rw, err := scanReward(r.db.QueryRow(ctx, `SELECT`+rewardColumns+` FROM rewards WHERE id = $1`, rewardID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("reward_id=%d: %w", rewardID, common.ErrRewardUnavailable)
		}
		return nil, fmt.Errorf("ошибка чтения награды: %w", err)
	}
	return rw, nil
}

// Purchase выполняет покупку одной транзакцией: списание, склад, запись о владении.
func (r *Repository) Purchase(ctx context.Context, accountID, rewardID int64, code string, fn PurchaseFunc) (*OwnedReward, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	acc, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	rw, err := scanReward(tx.QueryRow(ctx, `SELECT`+rewardColumns+` FROM rewards WHERE id = $1 FOR UPDATE`, rewardID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("reward_id=%d: %w", rewardID, common.ErrRewardUnavailable)
		}
		return nil, fmt.Errorf("ошибка блокировки награды: %w", err)
	}

	debit, err := fn(acc, rw)
	if err != nil {
		return nil, err
	}

	if err := saveAccount(ctx, tx, acc); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE rewards SET stock = $2, sold = $3 WHERE id = $1`, rw.ID, rw.Stock, rw.Sold); err != nil {
		return nil, fmt.Errorf("ошибка обновления склада: %w", err)
	}
	debit.AccountID = accountID
	if err := insertTransaction(ctx, tx, debit); err != nil {
		return nil, err
	}

	owned := &OwnedReward{
		AccountID:     accountID,
		RewardID:      rewardID,
		TransactionID: debit.ID,
		Code:          code,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO owned_rewards (account_id, reward_id, transaction_id, code)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, owned.AccountID, owned.RewardID, owned.TransactionID, owned.Code).Scan(&owned.ID, &owned.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ошибка записи купленной награды: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка коммита: %w", err)
	}
	return owned, nil
}

// OwnedRewards возвращает купленные награды пользователя.
func (r *Repository) OwnedRewards(ctx context.Context, accountID int64) ([]*OwnedReward, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, account_id, reward_id, transaction_id, code, created_at
		FROM owned_rewards
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения наград: %w", err)
	}
	defer rows.Close()

	var out []*OwnedReward
	for rows.Next() {
		var o OwnedReward
		if err := rows.Scan(&o.ID, &o.AccountID, &o.RewardID, &o.TransactionID, &o.Code, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования: %w", err)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

// Transactions возвращает последние N транзакций пользователя.
func (r *Repository) Transactions(ctx context.Context, accountID int64, limit int) ([]*Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, account_id, direction, amount, reason, linked_report_id, balance_after,
		       description, metadata, created_at
		FROM ledger_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения транзакций: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		var t Transaction
		var direction string
		if err := rows.Scan(
			&t.ID, &t.AccountID, &direction, &t.Amount, &t.Reason, &t.LinkedReportID,
			&t.BalanceAfter, &t.Description, &t.Metadata, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования транзакции: %w", err)
		}
		t.Direction = Direction(direction)
		out = append(out, &t)
	}
	return out, rows.Err()
}

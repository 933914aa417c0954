package postgres

type migration struct {
	version int
	name    string
	sql     string
}

// Миграции встроены в бинарник, чтобы деплой был одним файлом.
// Новые версии только добавляются в конец.
var migrations = []migration{
	{1, "accounts", migration001Accounts},
	{2, "ledger", migration002Ledger},
	{3, "rewards", migration003Rewards},
	{4, "reports", migration004Reports},
	{5, "moderation", migration005Moderation},
	{6, "pois", migration006POIs},
}

const migration001Accounts = `
CREATE TABLE IF NOT EXISTS accounts (
    id BIGINT PRIMARY KEY,
    total_reputation BIGINT NOT NULL DEFAULT 0 CHECK (total_reputation >= 0),
    monthly_reputation BIGINT NOT NULL DEFAULT 0,
    points_balance BIGINT NOT NULL DEFAULT 0 CHECK (points_balance >= 0),
    level INTEGER NOT NULL DEFAULT 1 CHECK (level >= 1),
    unique_review_count INTEGER NOT NULL DEFAULT 0,
    spam_count INTEGER NOT NULL DEFAULT 0,
    banned BOOLEAN NOT NULL DEFAULT FALSE,
    banned_until TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_accounts_monthly_reputation ON accounts(monthly_reputation DESC);
CREATE INDEX IF NOT EXISTS idx_accounts_total_reputation ON accounts(total_reputation DESC);
`

const migration002Ledger = `
CREATE TABLE IF NOT EXISTS ledger_transactions (
    id BIGSERIAL PRIMARY KEY,
    account_id BIGINT NOT NULL REFERENCES accounts(id),
    direction VARCHAR(16) NOT NULL CHECK (direction IN ('credit', 'debit')),
    amount BIGINT NOT NULL CHECK (amount >= 0),
    reason VARCHAR(64) NOT NULL,
    linked_report_id BIGINT,
    balance_after BIGINT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    metadata JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_ledger_transactions_account ON ledger_transactions(account_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_ledger_transactions_report ON ledger_transactions(linked_report_id);
`

const migration003Rewards = `
CREATE TABLE IF NOT EXISTS rewards (
    id BIGSERIAL PRIMARY KEY,
    title VARCHAR(255) NOT NULL,
    points_cost BIGINT NOT NULL CHECK (points_cost > 0),
    stock BIGINT NOT NULL DEFAULT -1 CHECK (stock >= -1),
    sold BIGINT NOT NULL DEFAULT 0,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS owned_rewards (
    id BIGSERIAL PRIMARY KEY,
    account_id BIGINT NOT NULL REFERENCES accounts(id),
    reward_id BIGINT NOT NULL REFERENCES rewards(id),
    transaction_id BIGINT NOT NULL REFERENCES ledger_transactions(id),
    code VARCHAR(64) UNIQUE NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_owned_rewards_account ON owned_rewards(account_id);
`

const migration004Reports = `
CREATE TABLE IF NOT EXISTS reports (
    id BIGSERIAL PRIMARY KEY,
    author_id BIGINT NOT NULL,
    kind VARCHAR(32) NOT NULL CHECK (kind IN ('poi_review', 'incident')),
    lat DOUBLE PRECISION NOT NULL CHECK (lat BETWEEN -90 AND 90),
    lon DOUBLE PRECISION NOT NULL CHECK (lon BETWEEN -180 AND 180),
    category VARCHAR(64) NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    has_media BOOLEAN NOT NULL DEFAULT FALSE,
    rating INTEGER CHECK (rating BETWEEN 1 AND 5),
    is_unique BOOLEAN,
    status VARCHAR(32) NOT NULL DEFAULT 'pending',
    moderated_by BIGINT,
    moderated_at TIMESTAMPTZ,
    moderation_comment TEXT NOT NULL DEFAULT '',
    poi_id BIGINT,
    rewarded BOOLEAN NOT NULL DEFAULT FALSE,
    form_data JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
-- Поиск кандидатов в дубликаты: категория + тип + время, затем прямоугольник
CREATE INDEX IF NOT EXISTS idx_reports_dedup ON reports(category, kind, created_at);
CREATE INDEX IF NOT EXISTS idx_reports_lat_lon ON reports(lat, lon);
CREATE INDEX IF NOT EXISTS idx_reports_poi ON reports(poi_id);
CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
`

const migration005Moderation = `
CREATE TABLE IF NOT EXISTS moderation_logs (
    id BIGSERIAL PRIMARY KEY,
    moderator_id BIGINT,
    report_id BIGINT NOT NULL REFERENCES reports(id),
    action VARCHAR(32) NOT NULL CHECK (action IN ('approved', 'soft_rejected', 'spam_blocked')),
    comment TEXT NOT NULL DEFAULT '',
    processing_time_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_moderation_logs_report ON moderation_logs(report_id, created_at);
`

const migration006POIs = `
CREATE TABLE IF NOT EXISTS poi_categories (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(64) UNIQUE NOT NULL
);
CREATE TABLE IF NOT EXISTS pois (
    id BIGSERIAL PRIMARY KEY,
    category_id BIGINT NOT NULL REFERENCES poi_categories(id),
    name VARCHAR(255) NOT NULL,
    lat DOUBLE PRECISION NOT NULL CHECK (lat BETWEEN -90 AND 90),
    lon DOUBLE PRECISION NOT NULL CHECK (lon BETWEEN -180 AND 180),
    description TEXT NOT NULL DEFAULT '',
    verified BOOLEAN NOT NULL DEFAULT FALSE,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    approved BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_pois_lat_lon ON pois(lat, lon);
CREATE INDEX IF NOT EXISTS idx_pois_category ON pois(category_id);
CREATE TABLE IF NOT EXISTS poi_ratings (
    poi_id BIGINT PRIMARY KEY REFERENCES pois(id),
    static_score DOUBLE PRECISION NOT NULL DEFAULT 50,
    social_score DOUBLE PRECISION NOT NULL DEFAULT 50,
    composite_score DOUBLE PRECISION NOT NULL DEFAULT 50,
    review_count INTEGER NOT NULL DEFAULT 0,
    approved_review_count INTEGER NOT NULL DEFAULT 0,
    last_recomputed TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE DOCUMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Every collection lives in one table of jsonb documents.
-- seq keeps insertion order for equal sort keys.
CREATE TABLE IF NOT EXISTS documents (
    seq BIGSERIAL PRIMARY KEY,
    collection VARCHAR(64) NOT NULL,
    id VARCHAR(255) NOT NULL,
    data JSONB NOT NULL DEFAULT '{}'::jsonb,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT documents_collection_id_key UNIQUE (collection, id),
    CONSTRAINT documents_data_object CHECK (jsonb_typeof(data) = 'object')
);

CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
CREATE INDEX IF NOT EXISTS idx_documents_data ON documents USING GIN (data jsonb_path_ops);
`

const migration001Down = `
DROP TABLE IF EXISTS documents;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: RANKING INDEXES
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Leaderboard top-N and rank counts on all-time XP.
CREATE INDEX IF NOT EXISTS idx_documents_user_stats_total_xp
    ON documents (((data->>'totalXp')::double precision) DESC)
    WHERE collection = 'user_stats' AND jsonb_typeof(data->'totalXp') = 'number';

-- Period buckets: (period, periodStart) then xp.
CREATE INDEX IF NOT EXISTS idx_documents_xp_periods_bucket
    ON documents ((data->>'period'), (data->>'periodStart'))
    WHERE collection = 'xp_periods';

-- Follow graph lookups by either side.
CREATE INDEX IF NOT EXISTS idx_documents_follows_follower
    ON documents ((data->>'followerId'))
    WHERE collection = 'follows';

CREATE INDEX IF NOT EXISTS idx_documents_follows_following
    ON documents ((data->>'followingId'))
    WHERE collection = 'follows';
`

const migration002Down = `
DROP INDEX IF EXISTS idx_documents_follows_following;
DROP INDEX IF EXISTS idx_documents_follows_follower;
DROP INDEX IF EXISTS idx_documents_xp_periods_bucket;
DROP INDEX IF EXISTS idx_documents_user_stats_total_xp;
`

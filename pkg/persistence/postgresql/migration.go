package postgresql

// migrations returns the numbered schema migrations for the PostgreSQL
// store. Executions carry a status check so terminal transitions can rely
// on the conditional UPDATE in FinishExecution.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id                UUID PRIMARY KEY,
				project_id        UUID,
				name              TEXT NOT NULL,
				description       TEXT NOT NULL DEFAULT '',
				status            TEXT NOT NULL DEFAULT 'draft',
				trigger_type      TEXT NOT NULL DEFAULT 'manual',
				cron_expression   TEXT,
				webhook_token     TEXT,
				active_version_id UUID,
				last_run_at       TIMESTAMP WITH TIME ZONE,
				created_at        TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at        TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				deleted_at        TIMESTAMP WITH TIME ZONE,
				CONSTRAINT workflows_status_check CHECK (status IN ('draft', 'active', 'paused', 'error')),
				CONSTRAINT workflows_trigger_check CHECK (trigger_type IN ('manual', 'webhook', 'schedule', 'polling'))
			);

			CREATE INDEX IF NOT EXISTS idx_workflows_status_trigger
				ON workflows (status, trigger_type) WHERE deleted_at IS NULL;

			CREATE TABLE IF NOT EXISTS workflow_versions (
				id            UUID PRIMARY KEY,
				workflow_id   UUID NOT NULL REFERENCES workflows (id) ON DELETE CASCADE,
				version       TEXT NOT NULL,
				notes         TEXT NOT NULL DEFAULT '',
				workflow_json JSONB NOT NULL,
				is_active     BOOLEAN NOT NULL DEFAULT FALSE,
				created_at    TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				deleted_at    TIMESTAMP WITH TIME ZONE
			);

			CREATE UNIQUE INDEX IF NOT EXISTS idx_workflow_versions_one_active
				ON workflow_versions (workflow_id) WHERE is_active;

			CREATE TABLE IF NOT EXISTS executions (
				id             UUID PRIMARY KEY,
				workflow_id    UUID NOT NULL REFERENCES workflows (id) ON DELETE CASCADE,
				version_id     UUID NOT NULL,
				status         TEXT NOT NULL DEFAULT 'running',
				trigger_type   TEXT NOT NULL,
				trigger_data   JSONB,
				input          JSONB,
				output         JSONB,
				error          TEXT,
				started_at     TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at    TIMESTAMP WITH TIME ZONE,
				execution_time BIGINT,
				deleted_at     TIMESTAMP WITH TIME ZONE,
				CONSTRAINT executions_status_check CHECK (status IN ('running', 'completed', 'failed', 'timed_out'))
			);

			CREATE INDEX IF NOT EXISTS idx_executions_workflow
				ON executions (workflow_id, started_at DESC) WHERE deleted_at IS NULL;

			CREATE TABLE IF NOT EXISTS execution_logs (
				id           UUID PRIMARY KEY,
				execution_id UUID NOT NULL REFERENCES executions (id) ON DELETE CASCADE,
				node_id      TEXT NOT NULL,
				node_name    TEXT NOT NULL,
				node_type    TEXT NOT NULL,
				level        TEXT NOT NULL DEFAULT 'info',
				status       TEXT,
				message      TEXT NOT NULL DEFAULT '',
				data         JSONB,
				created_at   TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at   TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_execution_logs_execution
				ON execution_logs (execution_id, created_at);

			CREATE TABLE IF NOT EXISTS connected_accounts (
				id            UUID PRIMARY KEY,
				user_id       UUID NOT NULL,
				provider      TEXT NOT NULL,
				email         TEXT,
				access_token  TEXT NOT NULL,
				refresh_token TEXT,
				expires_at    TIMESTAMP WITH TIME ZONE,
				created_at    TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at    TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				CONSTRAINT connected_accounts_user_provider_key UNIQUE (user_id, provider)
			);
		`,
	}
}

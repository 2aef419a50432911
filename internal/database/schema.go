package database

// Schema is the ordered list of migrations for the service.
var Schema = []Migration{
	{
		Name: "0001_config_entities",
		SQL: `
CREATE TABLE config_entities (
    id            UUID PRIMARY KEY,
    kind          TEXT        NOT NULL,
    data          JSONB       NOT NULL,
    unique_key    TEXT,
    is_deleted    BOOLEAN     NOT NULL DEFAULT FALSE,
    delete_reason TEXT        NOT NULL DEFAULT '',
    deleted_by    TEXT        NOT NULL DEFAULT '',
    created_by    TEXT        NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_by    TEXT        NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX config_entities_kind_live_idx ON config_entities (kind, created_at) WHERE NOT is_deleted;
CREATE UNIQUE INDEX config_entities_live_key ON config_entities (kind, unique_key)
    WHERE NOT is_deleted AND unique_key IS NOT NULL;`,
	},
	{
		Name: "0002_audit_records",
		SQL: `
CREATE TABLE audit_records (
    id             UUID PRIMARY KEY,
    kind           TEXT        NOT NULL,
    action_item_id UUID        NOT NULL REFERENCES config_entities (id),
    action         TEXT        NOT NULL CHECK (action IN ('Create', 'Edit', 'Delete')),
    action_by      TEXT        NOT NULL,
    action_date    TIMESTAMPTZ NOT NULL,
    snapshot       JSONB       NOT NULL,
    changes        JSONB
);
CREATE INDEX audit_records_item_idx ON audit_records (kind, action_item_id, action_date);

CREATE FUNCTION audit_records_append_only() RETURNS trigger AS $$
BEGIN
    RAISE EXCEPTION 'audit_records is append-only';
END;
$$ LANGUAGE plpgsql;

CREATE TRIGGER audit_records_no_mutation
    BEFORE UPDATE OR DELETE ON audit_records
    FOR EACH ROW EXECUTE FUNCTION audit_records_append_only();`,
	},
	{
		Name: "0003_process_requests",
		SQL: `
CREATE TABLE process_requests (
    id            UUID PRIMARY KEY,
    kind          TEXT        NOT NULL,
    file_name     TEXT        NOT NULL DEFAULT '',
    status        TEXT        NOT NULL,
    total_rows    INTEGER     NOT NULL DEFAULT 0,
    success_count INTEGER     NOT NULL DEFAULT 0,
    error_count   INTEGER     NOT NULL DEFAULT 0,
    log_file      TEXT        NOT NULL DEFAULT '',
    error_message TEXT        NOT NULL DEFAULT '',
    created_by    TEXT        NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
);`,
	},
}

package sqlstore_test

import (
	"database/sql"
	"testing"

	"github.com/corverroos/truss"
	_ "github.com/go-sql-driver/mysql"
)

var migrations = []string{
	`
	create table workflow_instances (
		id                 varchar(255) not null,
		submission         longblob not null,
		definition_name    varchar(255) not null,
		status             int not null,
		created_at         datetime(3) not null,
		updated_at         datetime(3) not null,

		primary key(id),

		index by_status (status)
	)`,
	`
	create table workflow_tasks (
		seq                bigint not null auto_increment,
		id                 varchar(255) not null,
		workflow_id        varchar(255) not null,
		stage              varchar(255) not null,
		agent              varchar(255) not null,
		action             varchar(255) not null,
		status             int not null,
		attempts           int not null,
		next_retry_at      datetime(3),
		started_at         datetime(3),
		completed_at       datetime(3),
		result             longblob,
		err_kind           varchar(64) not null,
		err_detail         text,
		created_at         datetime(3) not null,
		updated_at         datetime(3) not null,

		primary key(seq),
		unique by_id (id),

		index by_workflow_id (workflow_id)
	)`,
	`
	create table agent_samples (
		id                 bigint not null auto_increment,
		agent              varchar(255) not null,
		action             varchar(255) not null,
		latency            bigint not null,
		success            bool not null,
		timestamp          datetime(3) not null,

		primary key(id),

		index by_agent (agent)
	)`,
}

func ConnectForTesting(t *testing.T) *sql.DB {
	return truss.ConnectForTesting(t, migrations...)
}

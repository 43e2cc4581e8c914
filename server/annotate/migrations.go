package annotate

import (
	"strings"

	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

// Migrations for the job DB. Only the type of the primary key differs between drivers.
func Migrations(log logs.Log, driver string) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx, jobTableSQL(driver)))

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		ALTER TABLE annotation_job ADD COLUMN num_frames INT NOT NULL DEFAULT 0;
		ALTER TABLE annotation_job ADD COLUMN num_predictions INT NOT NULL DEFAULT 0;
	`))

	return migs
}

func jobTableSQL(driver string) string {
	idType := "INTEGER PRIMARY KEY"
	if driver == dbh.DriverPostgres {
		idType = "BIGSERIAL PRIMARY KEY"
	}
	return strings.ReplaceAll(`
		CREATE TABLE annotation_job(
			id $ID,
			video TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			annotations_path TEXT,
			created_at BIGINT NOT NULL,
			finished_at BIGINT
		);
		CREATE INDEX idx_annotation_job_status ON annotation_job(status);
	`, "$ID", idType)
}

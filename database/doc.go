// Package database provides the collaborators around the repository engine:
// configuration loading, connection management over Bun for mysql, postgres
// and sqlite, table creation for registered models, SQL seed files, driver
// error classification, logging and statement hooks.
package database

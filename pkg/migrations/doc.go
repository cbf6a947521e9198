// Package migrations provides SQL migration generation for the race
// bot's persistence tables. It generates database schema migrations for
// the scheduled races, per-race seed records and the prerolled seed
// cache across PostgreSQL, MySQL/MariaDB, and SQLite databases.
package migrations

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

const eventColumns = "sequence, id, type, actor, timestamp, data"

// whereClause renders the filter with numbered parameters starting at $1.
func whereClause(filter models.EventFilter) (string, []interface{}) {
	clause := " WHERE sequence > $1"
	args := []interface{}{filter.AfterSequence}
	argIndex := 2

	if filter.Type != nil {
		clause += fmt.Sprintf(" AND type = $%d", argIndex)
		args = append(args, string(*filter.Type))
		argIndex++
	}
	if filter.Actor != nil {
		clause += fmt.Sprintf(" AND actor = $%d", argIndex)
		args = append(args, encodeActor(*filter.Actor))
		argIndex++
	}
	if filter.FromTime != nil {
		clause += fmt.Sprintf(" AND timestamp >= $%d", argIndex)
		args = append(args, *filter.FromTime)
		argIndex++
	}
	if filter.ToTime != nil {
		clause += fmt.Sprintf(" AND timestamp <= $%d", argIndex)
		args = append(args, *filter.ToTime)
	}
	return clause, args
}

// selectEventsQuery builds an ordered, paginated select for the filter.
// unbounded is the dialect's LIMIT value meaning "no limit".
func selectEventsQuery(filter models.EventFilter, unbounded string) (string, []interface{}) {
	where, args := whereClause(filter)
	query := "SELECT " + eventColumns + " FROM ledger_events" + where + " ORDER BY sequence ASC"

	argIndex := len(args) + 1
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
		argIndex++
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT " + unbounded
		}
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filter.Offset)
	}
	return query, args
}

// toSQLitePlaceholders converts numbered parameters to ? for SQLite.
func toSQLitePlaceholders(query string, argCount int) string {
	for i := argCount; i >= 1; i-- {
		query = strings.Replace(query, fmt.Sprintf("$%d", i), "?", 1)
	}
	return query
}

func encodeActor(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func eventData(event *models.LedgerEvent) string {
	if len(event.Data) == 0 {
		return "{}"
	}
	return string(event.Data)
}

func scanEvents(rows *sql.Rows) ([]*models.LedgerEvent, error) {
	var events []*models.LedgerEvent
	for rows.Next() {
		var (
			event models.LedgerEvent
			typ   string
			actor string
			data  []byte
		)
		if err := rows.Scan(&event.Sequence, &event.ID, &typ, &actor, &event.Timestamp, &data); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan event", err.Error())
		}
		event.Type = models.EventType(typ)
		event.Actor = common.HexToAddress(actor)
		event.Data = append([]byte(nil), data...)
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to iterate events", err.Error())
	}
	return events, nil
}

// applyMigrations runs every migration not yet recorded in the migrations
// table and refuses to continue when a recorded checksum has changed.
func applyMigrations(db *sql.DB, migrations []*Migration, rebind func(string, int) string, logger *logrus.Logger) error {
	if len(migrations) == 0 {
		return nil
	}
	// the first migration creates the bookkeeping table itself
	if _, err := db.Exec(migrations[0].SQL); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create migrations table", err.Error())
	}

	for _, migration := range migrations {
		var recorded string
		err := db.QueryRow(rebind("SELECT checksum FROM migrations WHERE version = $1", 1), migration.Version).Scan(&recorded)
		switch {
		case err == nil:
			if recorded != migration.checksum() {
				return utils.NewAppError(utils.ErrCodeDatabase,
					fmt.Sprintf("Migration %s checksum mismatch", migration.Version), "")
			}
			continue
		case err != sql.ErrNoRows:
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to read migrations", err.Error())
		}

		logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying migration")

		tx, err := db.Begin()
		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin migration", err.Error())
		}
		if _, err := tx.Exec(migration.SQL); err != nil {
			tx.Rollback()
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version), err.Error())
		}
		if _, err := tx.Exec(rebind("INSERT INTO migrations (version, description, checksum) VALUES ($1, $2, $3)", 3),
			migration.Version, migration.Description, migration.checksum()); err != nil {
			tx.Rollback()
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Failed to record migration %s", migration.Version), err.Error())
		}
		if err := tx.Commit(); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit migration", err.Error())
		}
	}
	return nil
}

// sqlStats collects the backend-independent part of StorageStats.
func sqlStats(ctx context.Context, db *sql.DB) (*StorageStats, error) {
	stats := &StorageStats{EventsByType: make(map[string]int64)}

	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ledger_events").Scan(&stats.TotalEvents); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get event count", err.Error())
	}
	if stats.TotalEvents == 0 {
		return stats, nil
	}

	var oldest, latest, seq int64
	err := db.QueryRowContext(ctx, "SELECT MIN(timestamp), MAX(timestamp), MAX(sequence) FROM ledger_events").
		Scan(&oldest, &latest, &seq)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get event range", err.Error())
	}
	o, l := uint64(oldest), uint64(latest)
	stats.OldestEvent, stats.LatestEvent = &o, &l
	stats.LatestSequence = uint64(seq)

	rows, err := db.QueryContext(ctx, "SELECT type, COUNT(*) FROM ledger_events GROUP BY type")
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to group events", err.Error())
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var count int64
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan event group", err.Error())
		}
		stats.EventsByType[typ] = count
	}
	return stats, rows.Err()
}

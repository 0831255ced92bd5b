package timescale

import (
	"context"
	"fmt"
	"time"

	"github.com/WCL-INU/beeweb/internal/database"
	"github.com/WCL-INU/beeweb/internal/errors"
	"github.com/WCL-INU/beeweb/internal/models"
	"github.com/lib/pq"
)

const bucketColumns = `device_id, data_type, bucket_start, avg_value, sum_value, sample_count`

const upsertBucketClause = `
		ON CONFLICT (device_id, data_type, bucket_start) DO UPDATE
		SET avg_value = EXCLUDED.avg_value,
			sum_value = EXCLUDED.sum_value,
			sample_count = EXCLUDED.sample_count`

var summaryTables = map[models.Level]string{
	models.Level5m:  "summary_5m",
	models.Level30m: "summary_30m",
	models.Level2h:  "summary_2h",
}

// SummaryTable returns the aggregate table name of a summary level
func SummaryTable(level models.Level) (string, error) {
	table, ok := summaryTables[level]
	if !ok {
		return "", errors.NewConfigurationError("no summary table for level "+string(level), nil)
	}
	return table, nil
}

type SummaryRepo struct {
	baseRepo
}

// NewSummaryRepository creates the repository over summary_5m, summary_30m and
// summary_2h and makes sure the tables exist
func NewSummaryRepository(ctx context.Context, db database.DB) (*SummaryRepo, error) {
	repo := &SummaryRepo{baseRepo{db: db}}
	if err := repo.initializeSchema(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *SummaryRepo) initializeSchema(ctx context.Context) error {
	var queries []string
	for _, level := range models.SummaryLevels {
		table := summaryTables[level]
		queries = append(queries,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				device_id BIGINT NOT NULL,
				data_type INTEGER NOT NULL,
				bucket_start TIMESTAMPTZ NOT NULL,
				avg_value DOUBLE PRECISION,
				sum_value DOUBLE PRECISION,
				sample_count BIGINT NOT NULL,
				PRIMARY KEY (device_id, data_type, bucket_start)
			)`, table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_bucket_start ON %s(bucket_start)`, table, table),
		)
	}
	return r.execAll(ctx, "summary", queries)
}

func (r *SummaryRepo) UpsertBucket(ctx context.Context, level models.Level, bucket *models.AggregateBucket) error {
	table, err := SummaryTable(level)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6)`, table, bucketColumns) + upsertBucketClause

	_, err = r.db.GetDB().ExecContext(ctx, query,
		bucket.DeviceID, bucket.DataType, bucket.BucketStart.UTC(),
		bucket.AvgValue, bucket.SumValue, bucket.SampleCount)
	if err != nil {
		return errors.NewDatabaseError(fmt.Sprintf("failed to upsert %s bucket", level), err)
	}
	return nil
}

func (r *SummaryRepo) ListBuckets(ctx context.Context, level models.Level, deviceID int64, dataType models.DataType, from, to time.Time) ([]models.AggregateBucket, error) {
	table, err := SummaryTable(level)
	if err != nil {
		return nil, err
	}
	buckets := []models.AggregateBucket{}
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE device_id = $1 AND data_type = $2 AND bucket_start >= $3 AND bucket_start < $4
		ORDER BY bucket_start ASC`, bucketColumns, table)

	if err := r.db.GetDB().SelectContext(ctx, &buckets, query, deviceID, dataType, from, to); err != nil {
		return nil, errors.NewDatabaseError(fmt.Sprintf("failed to list %s buckets", level), err)
	}
	return buckets, nil
}

func (r *SummaryRepo) QueryBuckets(ctx context.Context, level models.Level, deviceID int64, dataTypes []models.DataType, start, end time.Time) ([]models.AggregateBucket, error) {
	table, err := SummaryTable(level)
	if err != nil {
		return nil, err
	}
	buckets := []models.AggregateBucket{}
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE device_id = $1 AND data_type = ANY($2) AND bucket_start BETWEEN $3 AND $4
		ORDER BY bucket_start DESC, data_type ASC`, bucketColumns, table)

	err = r.db.GetDB().SelectContext(ctx, &buckets, query, deviceID, pq.Array(typeIDs(dataTypes)), start, end)
	if err != nil {
		return nil, errors.NewDatabaseError(fmt.Sprintf("failed to query %s buckets", level), err)
	}
	return buckets, nil
}

func (r *SummaryRepo) HasBuckets(ctx context.Context, level models.Level, from, to time.Time) (bool, error) {
	table, err := SummaryTable(level)
	if err != nil {
		return false, err
	}
	return r.exists(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE bucket_start >= $1 AND bucket_start < $2)`, table), from, to)
}

// BackfillLevel runs one grouped INSERT ... SELECT for the window. The
// additive type set is bound as $3 so the category split happens in SQL.
func (r *SummaryRepo) BackfillLevel(ctx context.Context, level models.Level, from, to time.Time) (int64, error) {
	table, err := SummaryTable(level)
	if err != nil {
		return 0, err
	}
	secs := int64(level.Duration() / time.Second)

	var query string
	if level.Source() == models.LevelRaw {
		query = fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s)
		SELECT device_id, data_type,
			to_timestamp(floor(extract(epoch FROM time) / %[3]d) * %[3]d) AS bucket_start,
			CASE WHEN data_type = ANY($3) THEN NULL
				ELSE AVG(COALESCE(data_float, data_int::DOUBLE PRECISION)) END,
			CASE WHEN data_type = ANY($3) THEN SUM(COALESCE(data_float, data_int::DOUBLE PRECISION))
				ELSE NULL END,
			COUNT(COALESCE(data_float, data_int::DOUBLE PRECISION))
		FROM sensor_data
		WHERE time >= $1 AND time < $2
		GROUP BY device_id, data_type, 3
		HAVING COUNT(COALESCE(data_float, data_int::DOUBLE PRECISION)) > 0`, table, bucketColumns, secs) + upsertBucketClause
	} else {
		source := summaryTables[level.Source()]
		query = fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s)
		SELECT device_id, data_type,
			to_timestamp(floor(extract(epoch FROM bucket_start) / %[3]d) * %[3]d) AS bucket_start,
			CASE WHEN data_type = ANY($3) THEN NULL
				ELSE SUM(avg_value * sample_count) FILTER (WHERE avg_value IS NOT NULL)
					/ NULLIF(SUM(sample_count) FILTER (WHERE avg_value IS NOT NULL), 0) END,
			CASE WHEN data_type = ANY($3) THEN SUM(sum_value) ELSE NULL END,
			SUM(sample_count)
		FROM %[4]s
		WHERE bucket_start >= $1 AND bucket_start < $2
		GROUP BY device_id, data_type, 3
		HAVING SUM(sample_count) > 0`, table, bucketColumns, secs, source) + upsertBucketClause
	}

	result, err := r.db.GetDB().ExecContext(ctx, query, from, to, pq.Array(typeIDs(models.AdditiveTypes())))
	if err != nil {
		return 0, errors.NewDatabaseError(fmt.Sprintf("failed to backfill %s window", level), err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewDatabaseError("failed to get rows affected", err)
	}
	return rows, nil
}

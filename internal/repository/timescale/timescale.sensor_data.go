// FilePath: internal/repository/timescale/timescale.sensor_data.go
package timescale

import (
	"context"
	"database/sql"
	"time"

	"github.com/WCL-INU/beeweb/internal/database"
	"github.com/WCL-INU/beeweb/internal/errors"
	"github.com/WCL-INU/beeweb/internal/models"
	"github.com/lib/pq"
	nuts "github.com/vaudience/go-nuts"
)

const sampleColumns = `id, device_id, data_type, data_int, data_float, time`

type SensorDataRepo struct {
	baseRepo
}

// NewSensorDataRepository creates the raw sample repository and makes sure
// its table exists
func NewSensorDataRepository(ctx context.Context, db database.DB) (*SensorDataRepo, error) {
	repo := &SensorDataRepo{baseRepo{db: db}}
	if err := repo.initializeSchema(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *SensorDataRepo) initializeSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sensor_data (
			id BIGSERIAL NOT NULL,
			device_id BIGINT NOT NULL,
			data_type INTEGER NOT NULL,
			data_int BIGINT,
			data_float DOUBLE PRECISION,
			time TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (device_id, data_type, time)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sensor_data_device_time
			ON sensor_data(device_id, time)`,
		`CREATE INDEX IF NOT EXISTS idx_sensor_data_time_device_type
			ON sensor_data(time, device_id, data_type)`,
	}
	if err := r.execAll(ctx, "sensor data", queries); err != nil {
		return err
	}

	if !r.db.HasTimescale() {
		return nil
	}
	_, err := r.db.GetDB().ExecContext(ctx, `SELECT create_hypertable('sensor_data', 'time',
			chunk_time_interval => INTERVAL '1 day',
			if_not_exists => TRUE,
			migrate_data => TRUE
		)`)
	if err != nil {
		// plain table still works, only chunking is lost
		nuts.L.Errorf("[TimescaleDB] Failed to create sensor_data hypertable: %v", err)
	}
	return nil
}

// UpsertSample writes one sample; a repeated (device, type, time) replaces the value
func (r *SensorDataRepo) UpsertSample(ctx context.Context, sample *models.RawSample) error {
	query := `
		INSERT INTO sensor_data (device_id, data_type, data_int, data_float, time)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (device_id, data_type, time) DO UPDATE
		SET data_int = EXCLUDED.data_int, data_float = EXCLUDED.data_float
		RETURNING id`

	err := r.db.GetDB().GetContext(ctx, &sample.ID, query,
		sample.DeviceID, sample.DataType, sample.IntValue, sample.FloatValue, sample.Time.UTC())
	if err != nil {
		return errors.NewDatabaseError("failed to upsert sensor sample", err)
	}
	return nil
}

func (r *SensorDataRepo) SamplesInRange(ctx context.Context, deviceID int64, dataType models.DataType, from, to time.Time) ([]models.RawSample, error) {
	samples := []models.RawSample{}
	query := `
		SELECT ` + sampleColumns + `
		FROM sensor_data
		WHERE device_id = $1 AND data_type = $2 AND time >= $3 AND time < $4
		ORDER BY time ASC`

	err := r.db.GetDB().SelectContext(ctx, &samples, query, deviceID, dataType, from, to)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to get sensor samples", err)
	}
	return samples, nil
}

func (r *SensorDataRepo) LatestTime(ctx context.Context, deviceID int64, dataType models.DataType) (time.Time, bool, error) {
	var latest sql.NullTime
	query := `SELECT MAX(time) FROM sensor_data WHERE device_id = $1 AND data_type = $2`

	if err := r.db.GetDB().GetContext(ctx, &latest, query, deviceID, dataType); err != nil {
		return time.Time{}, false, errors.NewDatabaseError("failed to get series watermark", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return latest.Time.UTC(), true, nil
}

func (r *SensorDataRepo) TimeBounds(ctx context.Context) (*models.TimeRange, error) {
	var bounds struct {
		Min sql.NullTime `db:"tmin"`
		Max sql.NullTime `db:"tmax"`
	}
	query := `SELECT MIN(time) AS tmin, MAX(time) AS tmax FROM sensor_data`

	if err := r.db.GetDB().GetContext(ctx, &bounds, query); err != nil {
		return nil, errors.NewDatabaseError("failed to get sensor data bounds", err)
	}
	if !bounds.Min.Valid || !bounds.Max.Valid {
		return nil, nil
	}
	return &models.TimeRange{Min: bounds.Min.Time.UTC(), Max: bounds.Max.Time.UTC()}, nil
}

func (r *SensorDataRepo) HasSamples(ctx context.Context, from, to time.Time) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM sensor_data WHERE time >= $1 AND time < $2)`, from, to)
}

func (r *SensorDataRepo) ListSamples(ctx context.Context, deviceID int64, dataTypes []models.DataType, start, end time.Time) ([]models.RawSample, error) {
	samples := []models.RawSample{}
	query := `
		SELECT ` + sampleColumns + `
		FROM sensor_data
		WHERE device_id = $1 AND data_type = ANY($2) AND time BETWEEN $3 AND $4
		ORDER BY time DESC, data_type ASC`

	err := r.db.GetDB().SelectContext(ctx, &samples, query, deviceID, pq.Array(typeIDs(dataTypes)), start, end)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to list sensor samples", err)
	}
	return samples, nil
}

func typeIDs(types []models.DataType) []int64 {
	ids := make([]int64, len(types))
	for i, t := range types {
		ids[i] = int64(t)
	}
	return ids
}

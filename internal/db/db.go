package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mie-lab/car-sharing-simulator/internal/carshare"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// FetchTrips loads the upstream trip table. Geometry may be stored either as
// plain origin_x/origin_y (dest_x/dest_y) columns or as PostGIS geometries
// named geom_origin/geom_destination; the column layout is introspected.
// annotated reports whether the table already carries nearest-station fields;
// when false the caller must annotate the trips against the station scenario.
func FetchTrips(ctx context.Context, db *sql.DB) (trips []carshare.Trip, annotated bool, err error) {
	xyExists, err := hasColumns(ctx, db, "public", "trips", "origin_x", "origin_y", "dest_x", "dest_y")
	if err != nil {
		return nil, false, fmt.Errorf("introspect trips columns: %w", err)
	}
	var origin, dest string
	if xyExists["origin_x"] && xyExists["origin_y"] && xyExists["dest_x"] && xyExists["dest_y"] {
		origin = "origin_x, origin_y"
		dest = "dest_x, dest_y"
	} else {
		geomExists, err := hasColumns(ctx, db, "public", "trips", "geom_origin", "geom_destination")
		if err != nil {
			return nil, false, fmt.Errorf("introspect trips geometry: %w", err)
		}
		if !geomExists["geom_origin"] || !geomExists["geom_destination"] {
			return nil, false, fmt.Errorf("trips table missing expected geometry columns (origin_x/origin_y or geom_origin)")
		}
		origin = "ST_X(geom_origin::geometry), ST_Y(geom_origin::geometry)"
		dest = "ST_X(geom_destination::geometry), ST_Y(geom_destination::geometry)"
	}

	stationCols, err := hasColumns(ctx, db, "public", "trips",
		"closest_station_origin", "closest_station_destination",
		"distance_to_station_origin", "distance_to_station_destination")
	if err != nil {
		return nil, false, fmt.Errorf("introspect trips station columns: %w", err)
	}
	annotated = stationCols["closest_station_origin"] && stationCols["closest_station_destination"] &&
		stationCols["distance_to_station_origin"] && stationCols["distance_to_station_destination"]

	stationSel := "-1, -1, 0, 0"
	if annotated {
		stationSel = `COALESCE(closest_station_origin, -1),
                      COALESCE(closest_station_destination, -1),
                      COALESCE(distance_to_station_origin, 0),
                      COALESCE(distance_to_station_destination, 0)`
	}

	q := fmt.Sprintf(`SELECT id, person_id, activity_index,
                    %s, %s,
                    COALESCE(location_id_origin, -1),
                    COALESCE(location_id_destination, -1),
                    started_at_destination,
                    distance,
                    COALESCE(purpose_origin, ''),
                    COALESCE(purpose_destination, ''),
                    %s
             FROM trips
             ORDER BY person_id, activity_index`, origin, dest, stationSel)

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, false, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t carshare.Trip
		if err := rows.Scan(
			&t.ID, &t.PersonID, &t.ActivityIndex,
			&t.OriginGeom.X, &t.OriginGeom.Y,
			&t.DestinationGeom.X, &t.DestinationGeom.Y,
			&t.LocationIDOrigin, &t.LocationIDDestination,
			&t.ArrivalTime, &t.Distance,
			&t.PurposeOrigin, &t.PurposeDestination,
			&t.ClosestStationOrigin, &t.ClosestStationDestination,
			&t.DistanceToStationOrigin, &t.DistanceToStationDestination,
		); err != nil {
			return nil, false, err
		}
		t.VehicleNo = carshare.None
		t.StartStationNo = carshare.None
		t.EndStationNo = carshare.None
		trips = append(trips, t)
	}
	return trips, annotated, rows.Err()
}

// FetchStations loads the station scenario, including initial per-station
// vehicle inventories. The vehicle list column may be a Postgres int array or
// a bracketed text list; both spellings are parsed.
func FetchStations(ctx context.Context, db *sql.DB) ([]carshare.Station, error) {
	xyExists, err := hasColumns(ctx, db, "public", "stations", "x", "y")
	if err != nil {
		return nil, fmt.Errorf("introspect stations columns: %w", err)
	}
	var geomSel string
	if xyExists["x"] && xyExists["y"] {
		geomSel = "x, y"
	} else {
		geomExists, err := hasColumns(ctx, db, "public", "stations", "geom")
		if err != nil {
			return nil, fmt.Errorf("introspect stations geom: %w", err)
		}
		if !geomExists["geom"] {
			return nil, fmt.Errorf("stations table missing expected columns (x/y or geom)")
		}
		geomSel = "ST_X(geom::geometry), ST_Y(geom::geometry)"
	}
	q := fmt.Sprintf(`SELECT station_no, %s, COALESCE(vehicle_list::text, '')
             FROM stations ORDER BY station_no`, geomSel)
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()

	var stations []carshare.Station
	for rows.Next() {
		var s carshare.Station
		var list string
		if err := rows.Scan(&s.ID, &s.Geom.X, &s.Geom.Y, &list); err != nil {
			return nil, err
		}
		s.VehicleIDs, err = parseVehicleList(list)
		if err != nil {
			return nil, fmt.Errorf("station %d: %w", s.ID, err)
		}
		stations = append(stations, s)
	}
	return stations, rows.Err()
}

// parseVehicleList parses "{1,2,3}" (Postgres array) or "[1, 2, 3]" (csv
// import) into vehicle ids.
func parseVehicleList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "{}[]")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("parse vehicle list entry %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// EnsureOutputTables creates the mode-log and reservation tables if absent.
func EnsureOutputTables(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sim_modes (
            scenario           text NOT NULL,
            person_id          bigint NOT NULL,
            activity_index     integer NOT NULL,
            mode_decision_time timestamptz NOT NULL,
            mode               text NOT NULL,
            vehicle_no         integer NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS sim_reservations (
            scenario         text NOT NULL,
            reservation_no   integer NOT NULL,
            trip_ids         text NOT NULL,
            person_no        bigint NOT NULL,
            vehicle_no       integer NOT NULL,
            start_station_no integer NOT NULL,
            end_station_no   integer NOT NULL,
            reservationfrom  timestamptz NOT NULL,
            reservationto    timestamptz NOT NULL,
            drive_km         double precision NOT NULL,
            duration         double precision NOT NULL
        )`,
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure output tables: %w", err)
		}
	}
	return nil
}

// InsertModeLog persists the per-trip mode assignments of one scenario run.
func InsertModeLog(ctx context.Context, db *sql.DB, scenario string, trips []carshare.Trip) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert mode log: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM sim_modes WHERE scenario = $1`, scenario); err != nil {
		return fmt.Errorf("insert mode log: clear scenario: %w", err)
	}
	const q = `INSERT INTO sim_modes
        (scenario, person_id, activity_index, mode_decision_time, mode, vehicle_no)
        VALUES ($1, $2, $3, $4, $5, $6)`
	for _, t := range trips {
		if _, err := tx.ExecContext(ctx, q, scenario, t.PersonID, t.ActivityIndex, t.DecisionTime, string(t.Mode), t.VehicleNo); err != nil {
			return fmt.Errorf("insert mode log: trip %d: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// InsertReservations persists the booking log of one scenario run.
func InsertReservations(ctx context.Context, db *sql.DB, scenario string, res []carshare.Reservation) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert reservations: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM sim_reservations WHERE scenario = $1`, scenario); err != nil {
		return fmt.Errorf("insert reservations: clear scenario: %w", err)
	}
	const q = `INSERT INTO sim_reservations
        (scenario, reservation_no, trip_ids, person_no, vehicle_no,
         start_station_no, end_station_no, reservationfrom, reservationto,
         drive_km, duration)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	for _, r := range res {
		if _, err := tx.ExecContext(ctx, q, scenario, r.ReservationNo, joinIDs(r.TripIDs), r.PersonNo, r.VehicleNo,
			r.StartStationNo, r.EndStationNo, r.ReservationFrom, r.ReservationTo, r.DriveKm, r.DurationHours); err != nil {
			return fmt.Errorf("insert reservations: reservation %d: %w", r.ReservationNo, err)
		}
	}
	return tx.Commit()
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	// Initialize to false
	for _, c := range cols {
		res[c] = false
	}
	q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}

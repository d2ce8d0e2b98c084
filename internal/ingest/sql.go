package ingest

// stagingTableSQL holds raw feed rows for the duration of one load
// transaction.
const stagingTableSQL = `
CREATE TEMP TABLE IF NOT EXISTS tempfetchdata (
    location text,
    value float,
    unit text,
    parameter text,
    country text,
    city text,
    data jsonb,
    source_name text,
    datetime timestamptz,
    coords text,
    source_type text,
    mobile boolean,
    avpd_unit text,
    avpd_value float,
    tfdid int GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    sensors_id int
) ON COMMIT DROP;
`

// dayWindowFilterSQL trims a multi-object day load down to rows
// recorded near that day.
const dayWindowFilterSQL = `
DELETE FROM tempfetchdata WHERE datetime
NOT BETWEEN @day::timestamptz - '1 hour'::interval AND @day::timestamptz + '1 days'::interval;
`

// nullRowsFilterSQL drops rows with nothing to match a node on.
const nullRowsFilterSQL = `
DELETE FROM tempfetchdata WHERE coords IS NULL AND source_name IS NULL AND location IS NULL;
`

// resolveSQL matches staged rows to sensor nodes, systems, measurands
// and sensors, creating whatever does not exist yet. Rows that cannot be
// resolved move to the rejects table instead of failing the batch.
// Node identity is geometry first (within ~11m), site plus source name
// as the fallback for rows with no coordinates.
const resolveSQL = `
CREATE TEMP TABLE IF NOT EXISTS tempfetchdata_sensors ON COMMIT DROP AS
WITH t AS (
SELECT DISTINCT
    location as site_name,
    unit as units,
    parameter as measurand,
    country,
    city,
    jsonb_merge_agg(data) as data,
    source_name,
    coords::geometry as geom,
    source_type,
    mobile as ismobile,
    avpd_unit,
    avpd_value,
    null::int as sensor_nodes_id,
    null::int as sensor_systems_id,
    null::int as measurands_id,
    null::int as sensors_id,
    null::jsonb as node_metadata,
    null::jsonb as sensor_metadata,
    array_agg(tfdid) as tfdids
FROM tempfetchdata
GROUP BY
    location, unit, parameter, country, city, coords,
    source_type, source_name, mobile, avpd_unit, avpd_value
)
SELECT row_number() over () as tfsid, * FROM t;
CREATE INDEX ON tempfetchdata_sensors (tfsid);

UPDATE tempfetchdata_sensors SET geom = NULL
WHERE st_x(geom) = 0 AND st_y(geom) = 0;

UPDATE tempfetchdata_sensors SET units = 'µg/m³'
WHERE units IN ('µg/m��', '��g/m³', 'ug/m3');

UPDATE tempfetchdata_sensors SET
node_metadata =
    jsonb_strip_nulls(
        COALESCE(data, '{}'::jsonb)
        ||
        jsonb_build_object(
            'source_type', COALESCE(source_type, 'government'),
            'origin', 'openaq'
        )
    ),
sensor_metadata = jsonb_strip_nulls(jsonb_build_object(
    'data_averaging_period_seconds', avpd_value * 3600
    ));

CREATE TEMP TABLE IF NOT EXISTS tempfetchdata_nodes ON COMMIT DROP AS
SELECT * FROM (SELECT
    first_notnull(site_name) as site_name,
    first_notnull(source_name) as source_name,
    first_notnull(country) as country,
    first_notnull(city) as city,
    jsonb_merge_agg(node_metadata) as metadata,
    first_notnull(ismobile) as ismobile,
    null::int as sensor_nodes_id,
    null::int as sensor_systems_id,
    st_centroid(st_collect(geom)) as geom,
    array_agg(tfsid) as tfsids
FROM tempfetchdata_sensors
WHERE geom IS NOT NULL
GROUP BY st_snaptogrid(geom, .0001)
) AS wgeom
UNION ALL
SELECT * FROM (SELECT
    site_name,
    source_name,
    first_notnull(country) as country,
    first_notnull(city) as city,
    jsonb_merge_agg(node_metadata) as metadata,
    first_notnull(ismobile) as ismobile,
    null::int as sensor_nodes_id,
    null::int as sensor_systems_id,
    null::geometry as geom,
    array_agg(tfsid) as tfsids
FROM tempfetchdata_sensors
WHERE geom IS NULL AND site_name IS NOT NULL AND source_name IS NOT NULL
GROUP BY site_name, source_name
) AS nogeom;

UPDATE tempfetchdata_nodes t SET sensor_nodes_id = sn.sensor_nodes_id
FROM sensor_nodes sn
WHERE t.geom IS NOT NULL
AND st_dwithin(sn.geom, t.geom, .0001);

UPDATE tempfetchdata_nodes t SET sensor_nodes_id = sn.sensor_nodes_id
FROM sensor_nodes sn
WHERE t.sensor_nodes_id IS NULL
AND t.site_name IS NOT NULL AND t.source_name IS NOT NULL
AND t.site_name = sn.site_name AND t.source_name = sn.source_name;

UPDATE sensor_nodes s SET
    site_name = COALESCE(t.site_name, s.site_name),
    source_name = COALESCE(t.source_name, s.source_name),
    city = COALESCE(t.city, s.city),
    country = COALESCE(t.country, s.country),
    ismobile = COALESCE(t.ismobile, s.ismobile),
    metadata = COALESCE(s.metadata, '{}'::jsonb) || t.metadata,
    geom = COALESCE(t.geom, s.geom)
FROM tempfetchdata_nodes t
WHERE t.sensor_nodes_id = s.sensor_nodes_id AND
(
    (s.geom IS NULL AND t.geom IS NOT NULL)
    OR
    ROW(
        t.sensor_nodes_id, t.ismobile, t.site_name, t.source_name,
        t.city, t.country, t.metadata
    ) IS DISTINCT FROM (
        s.sensor_nodes_id, s.ismobile, s.site_name, s.source_name,
        s.city, s.country, s.metadata
    )
);

WITH sn AS (
INSERT INTO sensor_nodes (
    site_name, metadata, geom, source_name, city, country, ismobile
)
SELECT site_name, metadata, geom, source_name, city, country, ismobile
FROM tempfetchdata_nodes t
WHERE t.sensor_nodes_id IS NULL
RETURNING *
)
UPDATE tempfetchdata_nodes tf SET sensor_nodes_id = sn.sensor_nodes_id
FROM sn WHERE tf.sensor_nodes_id IS NULL
AND row(tf.site_name, tf.geom, tf.source_name) IS NOT DISTINCT
FROM row(sn.site_name, sn.geom, sn.source_name);

UPDATE tempfetchdata_nodes t SET sensor_systems_id = ss.sensor_systems_id
FROM sensor_systems ss
WHERE t.sensor_nodes_id = ss.sensor_nodes_id;

INSERT INTO rejects
SELECT clock_timestamp(), 'sensor_nodes', to_jsonb(tf)
FROM tempfetchdata_nodes tf WHERE sensor_nodes_id IS NULL;
DELETE FROM tempfetchdata_nodes WHERE sensor_nodes_id IS NULL;

WITH ss AS (
INSERT INTO sensor_systems (sensor_nodes_id)
SELECT DISTINCT sensor_nodes_id FROM tempfetchdata_nodes t
WHERE t.sensor_systems_id IS NULL AND t.sensor_nodes_id IS NOT NULL
RETURNING *
)
UPDATE tempfetchdata_nodes tf SET sensor_systems_id = ss.sensor_systems_id
FROM ss WHERE tf.sensor_nodes_id = ss.sensor_nodes_id
AND tf.sensor_systems_id IS NULL;

INSERT INTO rejects
SELECT clock_timestamp(), 'sensor_systems', to_jsonb(tf)
FROM tempfetchdata_nodes tf WHERE sensor_systems_id IS NULL;
DELETE FROM tempfetchdata_nodes WHERE sensor_systems_id IS NULL;

UPDATE tempfetchdata_sensors ts SET
    sensor_nodes_id = tn.sensor_nodes_id,
    sensor_systems_id = tn.sensor_systems_id
FROM tempfetchdata_nodes tn
WHERE ts.tfsid = ANY(tn.tfsids);

UPDATE tempfetchdata_sensors t SET measurands_id = m.measurands_id
FROM measurands m
WHERE t.measurand = m.measurand AND t.units = m.units;

WITH m AS (
INSERT INTO measurands (measurand, units)
SELECT DISTINCT measurand, units FROM tempfetchdata_sensors t
WHERE t.measurands_id IS NULL
RETURNING *
)
UPDATE tempfetchdata_sensors tf SET measurands_id = m.measurands_id
FROM m WHERE tf.measurand = m.measurand AND tf.units = m.units
AND tf.measurands_id IS NULL;

CREATE TEMP TABLE IF NOT EXISTS tempfetchdata_sensors_clean ON COMMIT DROP AS
SELECT
    null::int as sensors_id,
    sensor_nodes_id,
    sensor_systems_id,
    measurands_id,
    jsonb_merge_agg(sensor_metadata) as metadata,
    array_merge_agg(tfdids) as tfdids
FROM tempfetchdata_sensors
GROUP BY 1, 2, 3, 4;

UPDATE tempfetchdata_sensors_clean t SET sensors_id = s.sensors_id
FROM sensors s
WHERE t.sensor_systems_id = s.sensor_systems_id
AND t.measurands_id = s.measurands_id;

INSERT INTO rejects
SELECT clock_timestamp(), 'sensors', to_jsonb(tf)
FROM tempfetchdata_sensors_clean tf
WHERE sensor_systems_id IS NULL OR measurands_id IS NULL;
DELETE FROM tempfetchdata_sensors_clean
WHERE sensor_systems_id IS NULL OR measurands_id IS NULL;

WITH s AS (
    INSERT INTO sensors (sensor_systems_id, measurands_id, metadata)
    SELECT sensor_systems_id, measurands_id, metadata
    FROM tempfetchdata_sensors_clean tf
    WHERE tf.sensors_id IS NULL
    RETURNING *
)
UPDATE tempfetchdata_sensors_clean tfc SET sensors_id = s.sensors_id
FROM s
WHERE tfc.sensors_id IS NULL
AND s.sensor_systems_id = tfc.sensor_systems_id
AND s.measurands_id = tfc.measurands_id;

UPDATE tempfetchdata t SET sensors_id = ts.sensors_id
FROM tempfetchdata_sensors_clean ts
WHERE t.tfdid = ANY(ts.tfdids);

INSERT INTO rejects
SELECT clock_timestamp(), 'sensors', to_jsonb(tf)
FROM tempfetchdata tf WHERE sensors_id IS NULL;
DELETE FROM tempfetchdata WHERE sensors_id IS NULL;
`

// groupsSQL maintains the rollup grouping tables for the sensors this
// load touched: one total group, one group per country, per node and
// per source.
const groupsSQL = `
CREATE TEMP TABLE IF NOT EXISTS tempfetchdata_groups ON COMMIT DROP AS
SELECT DISTINCT t.sensors_id, sn.site_name, sn.country, sn.source_name
FROM tempfetchdata t
JOIN sensors s ON s.sensors_id = t.sensors_id
JOIN sensor_systems ss USING (sensor_systems_id)
JOIN sensor_nodes sn USING (sensor_nodes_id);

INSERT INTO groups (type, name, subtitle)
VALUES ('total', 'total', 'total')
ON CONFLICT (type, name) DO NOTHING;

INSERT INTO groups (type, name, subtitle)
SELECT DISTINCT 'node', site_name, source_name
FROM tempfetchdata_groups WHERE site_name IS NOT NULL
ON CONFLICT (type, name) DO NOTHING;

INSERT INTO groups (type, name, subtitle)
SELECT DISTINCT 'country', country, country
FROM tempfetchdata_groups WHERE country IS NOT NULL
ON CONFLICT (type, name) DO NOTHING;

INSERT INTO groups (type, name, subtitle)
SELECT DISTINCT 'source', source_name, source_name
FROM tempfetchdata_groups WHERE source_name IS NOT NULL
ON CONFLICT (type, name) DO NOTHING;

INSERT INTO groups_sensors (groups_id, sensors_id)
SELECT g.groups_id, tg.sensors_id
FROM tempfetchdata_groups tg
CROSS JOIN LATERAL (
    SELECT groups_id FROM groups
    WHERE (type = 'total')
    OR (type = 'node' AND name = tg.site_name)
    OR (type = 'country' AND name = tg.country)
    OR (type = 'source' AND name = tg.source_name)
) g
ON CONFLICT DO NOTHING;
`

// insertMeasurementsSQL moves resolved staged rows into the measurements
// table. The unique constraint makes re-loads of the same object no-ops.
const insertMeasurementsSQL = `
INSERT INTO measurements (sensors_id, datetime, value)
SELECT sensors_id, datetime, value
FROM tempfetchdata
ON CONFLICT DO NOTHING;
`

// boundsSQL reads back the datetime range that was staged, used to
// window the rollup refresh.
const boundsSQL = `
SELECT min(datetime), max(datetime) FROM tempfetchdata;
`

// rollupPeriodsSQL recomputes the hour, day, month and year rollups for
// every group touched by the load. Rollups are rebuilt from the base
// measurements over whole periods intersecting [mindate, maxdate], so a
// partial re-load converges to the same aggregates.
const rollupPeriodsSQL = `
INSERT INTO rollups (
    groups_id, measurands_id, rollup, st, et,
    first_datetime, last_datetime, value_count, value_sum
)
SELECT
    gs.groups_id,
    s.measurands_id,
    periods.rollup,
    date_trunc(periods.unit, m.datetime) as st,
    date_trunc(periods.unit, m.datetime) + ('1 ' || periods.unit)::interval as et,
    min(m.datetime),
    max(m.datetime),
    count(*),
    sum(m.value)
FROM measurements m
JOIN sensors s USING (sensors_id)
JOIN groups_sensors gs USING (sensors_id)
CROSS JOIN (VALUES
    ('hour', 'hour'),
    ('day', 'day'),
    ('month', 'month'),
    ('year', 'year')
) AS periods(rollup, unit)
WHERE m.datetime >= date_trunc(periods.unit, @mindate::timestamptz)
AND m.datetime < date_trunc(periods.unit, @maxdate::timestamptz) + ('1 ' || periods.unit)::interval
GROUP BY 1, 2, 3, 4, 5
ON CONFLICT (groups_id, measurands_id, rollup, st) DO UPDATE SET
    et = EXCLUDED.et,
    first_datetime = EXCLUDED.first_datetime,
    last_datetime = EXCLUDED.last_datetime,
    value_count = EXCLUDED.value_count,
    value_sum = EXCLUDED.value_sum;
`

// rollupTotalDeleteSQL clears the total rollups for touched groups; a
// load can move the start of a group's range, so the totals are
// rebuilt rather than upserted.
const rollupTotalDeleteSQL = `
DELETE FROM rollups r
USING (
    SELECT DISTINCT gs.groups_id, s.measurands_id
    FROM measurements m
    JOIN sensors s USING (sensors_id)
    JOIN groups_sensors gs USING (sensors_id)
    WHERE m.datetime BETWEEN @mindate::timestamptz AND @maxdate::timestamptz
) a
WHERE r.rollup = 'total'
AND r.groups_id = a.groups_id AND r.measurands_id = a.measurands_id;
`

// rollupTotalInsertSQL rebuilds the whole-history total rollup for the
// groups touched by the load.
const rollupTotalInsertSQL = `
INSERT INTO rollups (
    groups_id, measurands_id, rollup, st, et,
    first_datetime, last_datetime, value_count, value_sum
)
SELECT
    gs.groups_id,
    s.measurands_id,
    'total',
    date_trunc('day', min(m.datetime)),
    date_trunc('day', max(m.datetime)) + '1 day'::interval,
    min(m.datetime),
    max(m.datetime),
    count(*),
    sum(m.value)
FROM measurements m
JOIN sensors s USING (sensors_id)
JOIN groups_sensors gs USING (sensors_id)
WHERE (gs.groups_id, s.measurands_id) IN (
    SELECT DISTINCT gs2.groups_id, s2.measurands_id
    FROM measurements m2
    JOIN sensors s2 USING (sensors_id)
    JOIN groups_sensors gs2 USING (sensors_id)
    WHERE m2.datetime BETWEEN @mindate::timestamptz AND @maxdate::timestamptz
)
GROUP BY 1, 2, 3
ON CONFLICT (groups_id, measurands_id, rollup, st) DO UPDATE SET
    et = EXCLUDED.et,
    first_datetime = EXCLUDED.first_datetime,
    last_datetime = EXCLUDED.last_datetime,
    value_count = EXCLUDED.value_count,
    value_sum = EXCLUDED.value_sum;
`

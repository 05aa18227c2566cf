package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// readingMeasurement is the measurement name for sensor readings.
const readingMeasurement = "sensor_readings"

// WriteReading writes one sensor reading to InfluxDB.
//
// The write is non-blocking; points are batched and flushed asynchronously.
// Failures surface through the SetOnError callback.
//
// Parameters:
//   - deviceID: The reporting device
//   - params: Parameter name → value (e.g., "ph": 7.2, "turbidity": 1.4)
//   - timestamp: Device-reported (or validated server) measurement time
//   - receivedAt: Server ingestion time, stored as a field for lag analysis
func (c *Client) WriteReading(deviceID string, params map[string]float64, timestamp, receivedAt time.Time) {
	if !c.IsConnected() || len(params) == 0 {
		return
	}

	fields := make(map[string]interface{}, len(params)+1)
	for name, value := range params {
		fields[name] = value
	}
	fields["received_at"] = receivedAt.UnixMilli()

	point := write.NewPoint(
		readingMeasurement,
		map[string]string{
			"device_id": deviceID,
		},
		fields,
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// Flush forces all buffered points to be written immediately.
// Used during shutdown to avoid losing the current batch.
func (c *Client) Flush() {
	c.writeAPI.Flush()
}

// Package influxdb records twin attribute updates as InfluxDB time series.
//
// Each update becomes one point in the attribute_history measurement:
//
//	attribute_history,attribute=attrscope__SHARED_SCOPE__name__temperature,device_id=<uuid>,scope=SHARED_SCOPE value=21.5 <ts>
//
// Numbers go to the value field, booleans to value_bool and strings to
// value_text, so a key that changes type never conflicts with itself. Null
// values carry nothing to plot and are skipped. Timestamps are the device's
// own millisecond timestamps.
//
// Writes are non-blocking and batched by the client library according to
// influxdb.batch_size and influxdb.flush_interval. Asynchronous write
// failures are delivered to the callback set with SetOnError.
//
// The Client satisfies session.Recorder.
package influxdb

// Package influxdb exports arbiter activity to InfluxDB v2 as time series.
//
// Two measurements are written:
//
//	arbiter_lock      tags: action, mode, agent    fields: lock_id, commands, ttl_ms
//	arbiter_dispatch  tags: status, endpoint, agent fields: command_id, duration_ms
//
// Writes go through the non-blocking batched write API, so a slow or
// unreachable server never holds up arbitration or dispatch. Write errors
// are delivered asynchronously to the callback set with SetOnError.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteDispatch(influxdb.DispatchSample{...})
package influxdb

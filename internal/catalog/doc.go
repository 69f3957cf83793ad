// Package catalog holds the command and endpoint metadata that the
// arbitration and dispatch layers consult.
//
// An Endpoint is a device or system served by one front-end protocol. Each
// Command belongs to exactly one endpoint; the dispatcher uses that link to
// find the live handler for a request. Endpoints also carry free-form
// key/value rows that front-end configurers turn into protocol settings.
//
// The catalog is stored in SQLite and cached in memory by Registry. It is
// normally populated from a YAML seed file at startup:
//
//	endpoints:
//	  - id: ep-boiler
//	    name: Boiler
//	    protocol: loopback
//	    config:
//	      protocolConfig.latency_ms: "20"
//	    commands:
//	      - id: cmd-boiler-on
//	        name: BoilerOn
//	        category: CONTROL
//	      - id: cmd-boiler-setpoint
//	        name: BoilerSetpoint
//	        category: SETPOINT_DOUBLE
package catalog

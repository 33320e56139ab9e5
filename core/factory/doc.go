// Package factory builds pluggable components, such as metrics sinks, from
// configuration entries of the form
//
//	sinks:
//	  - type: influx
//	    conf:
//	      url: http://localhost:8086
//	      bucket: energysched
//
// A Registry maps each type name to a Factory; the factory decodes its conf
// map with Decode and returns the component.
package factory

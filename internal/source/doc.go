// Package source opens the transports tether reads records from.
//
// An identity string picks the transport:
//
//	/dev/ttyUSB0, COM3             serial port at the configured baud rate
//	serial:/dev/ttyUSB0@9600       serial port with an explicit baud rate
//	tcp://host:port                raw TCP
//	telnet://host[:port]           TCP with telnet option negotiation removed
//	file:/var/log/device.log       follow a file as it grows
//	-                              standard input
//
// Every transport is framed into records by the same line reader: a record
// ends at a newline, at MaxLine bytes, or when the transport fails. A
// record's arrival time is when its first byte was read.
package source

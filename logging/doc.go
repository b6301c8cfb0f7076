/*
Package logging implements application log instrumentation and an Apache
combined style access log.

# Application log

The application log uses the logrus package:

https://github.com/sirupsen/logrus

To send messages to the application log, import logrus and use its methods.
Example:

	import log "github.com/sirupsen/logrus"

	func doSomething() {
	    log.Errorf("nothing to do")
	}

During startup initialization, it is possible to redirect the log output
from the default /dev/stderr to another file, and to set a common prefix
for each log entry. Setting the prefix may be a good idea when the access
log is enabled and shares its output with the application log, to make it
easier to split the output for diagnostics.

# Access log

The access log prints HTTP access information in the Apache combined
access log format, extended with the duration in milliseconds and the
requested host. To output entries, use the LogAccess function. Note that
the proxy handler provides access logging automatically for every served
request.

During initialization, it is possible to redirect the access log output
from the default /dev/stderr to another file, to switch it to JSON
format, or to disable it completely.
*/
package logging

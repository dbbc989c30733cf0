/*
Package jsbridge exposes Go functions, classes and asynchronous tasks to an embedded JavaScript engine (goja).

Values cross the boundary as a tagged union (Value) and are validated against the declared
parameter types (ValueType) of the native function before it runs. Native failures surface as
JavaScript exceptions with a stable message, and long running Go work is executed off the engine's
single thread and settled back on it through a Task, optionally cancelled by an AbortSignal.
*/
package jsbridge

/*
Package classifier asks a local language model whether a submitted line is a
shell command or natural language.

The model is reached over the Ollama generate API. Any reply containing
"command" is a command verdict; every other reply, and every failure, leaves
the line classified as natural language. Calls run off the tick loop: the
Dispatcher starts one goroutine per line and posts the outcome to a mailbox
as a bridge.Classification, bridge.ClassifierError or bridge.Answer event.
In-flight calls are never cancelled; if the mailbox was closed in the
meantime the result is dropped.
*/
package classifier

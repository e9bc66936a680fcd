// Package ecs bridges grove hierarchy events into a [Donburi] world.
//
// [NewDonburiSink] queues every collection event of a grove World and
// publishes it as a typed Donburi event. Subscribe to [HierarchyEventType]
// in your systems, then call [Sink.ProcessEvents] once per tick from the
// goroutine that owns the Donburi world:
//
//	sink := ecs.NewDonburiSink(ecsWorld)
//	world.SetEventSink(sink)
//	...
//	sink.ProcessEvents()
//
// [Mirror] goes one step further and keeps one entity per attached node,
// carrying the node and its current dotted id in [NodeComponent].
//
// [Donburi]: https://github.com/yohamta/donburi
package ecs

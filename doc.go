// Package autotool turns the callable surface of a previously unseen library
// into a bounded set of LLM tools and invokes them on request.
//
// # Overview
//
// A Provider exposes a library as a graph of namespaces and callables. The
// pipeline walks that graph and publishes tools:
//
//	Discover → Select (scoring, tiers) → Recognizer (CRUD, resources, flags)
//	→ Synthesizer (ids, input schemas) → Toolset
//
// A Bridge resolves a tool id back to its callable through the Toolset's
// resolution table, coerces the JSON arguments to the declared parameter
// types, invokes the provider and serializes whatever comes back.
//
// # Key concepts
//
//   - Determinism: discovery visits members in name order, selection sorts by
//     score then name, and tool ids are issued in discovery order, so the same
//     library and overlay always publish the same tools.
//   - Overlays: an optional Overlay per root tunes scoring, destructive
//     detection and descriptions. Package hints loads them with the precedence
//     explicit file > auto-generated > default.
//   - Structured errors: every failure is an *Error with a Kind; a bad member,
//     argument or invocation never takes the process down.
//   - Handles: owned callables receive a client handle built once per owner
//     and auth configuration (single-flight) and cached until Close.
//
// # Example
//
//	ts, err := autotool.Build(ctx, provider, "inventory")
//	if err != nil { ... }
//	bridge := autotool.NewBridge(provider, ts)
//	defer bridge.Close(ctx)
//	res := bridge.Invoke(ctx, autotool.Call{Tool: "inventory_list_items", Args: []byte(`{}`)})
//	if res.Error != nil { ... }
package autotool

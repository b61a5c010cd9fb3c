// Package protocol defines the typed messages exchanged between the
// orchestrator and isolated execution units.
//
// The JSON shapes are a wire contract shared with the host UI and the
// privileged action executor; field names must stay exactly as declared:
//
//	ExecuteMessage      { type:"execute", pluginId, pluginPath, query, permissions:string[], timeout:number }
//	ResultMessage       { type:"result", success:bool, results:PluginSearchResult[], error?:string, executionTime:number }
//	LogMessage          { type:"log", level:"info"|"warn"|"error", args:any[], pluginId?:string }
//	NotificationMessage { type:"notification", title:string, message:string }
//	PluginSearchResult  { id, title, description?, icon?, score?, actionData:{type, ...payload} }
//
// ActionData is a tagged union: the "type" field selects the action and the
// remaining fields are its payload, flattened into the same object. Every
// message is plain serializable data; callable values never cross the
// boundary in either direction.
//
// All durations on the wire (timeout, executionTime) are milliseconds.
package protocol

// Package protocol implements the POLI:MSG block wire format exchanged by the
// Planner and Executer agents.
//
// A block is embedded in an agent's free-text output:
//
//	[[POLI:MSG {"to": "EXECUTER", "type": "plan", "id": "t1"}]]
//	Step 1: do X
//	[[/POLI:MSG]]
//
// Decode scans a whole transcript and returns only the most recent complete
// block, so re-rendered or scrolled-back blocks never shadow a newer one.
package protocol

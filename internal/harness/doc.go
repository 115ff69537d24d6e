// Package harness runs compiler scenarios: a bundle of input files, the
// options to compile it with, and assertions about the outcome.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	namespace: app
//	base_url: https://example.com/site/
//	inputs:
//	  - file: style.css
//	    content: ".card { color: red }"
//	assertions:
//	  - type: accepted
//	  - type: diagnostic_count
//	    code: CSS_DISALLOWED_PROPERTY
//	    count: 1
//	  - type: output_contains
//	    output: css
//	    text: ".app .app-card {"
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - accepted: the compilation reported no errors
//   - rejected: the compilation reported at least one error
//   - diagnostic_count: a diagnostic code was reported exactly N times
//   - output_contains: the js or css output contains text
//   - output_absent: the js or css output does not contain text
//
// # Deterministic Testing
//
// Scenarios compile with a fixed namespace (or one derived from the base
// URL and file names), never touch the network and use no persistent
// cache, so the same scenario always yields the same output. Snapshot
// holds the parts compared against golden files.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/clean_bundle.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, err := range harness.Check(scenario, result) {
//	    log.Println(err)
//	}
package harness

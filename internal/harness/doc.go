// Package harness provides conformance testing for relq queries.
//
// A scenario loads a schema and a set of records into every repository
// implementation, runs finder queries against each, and checks that they
// return what the scenario expects and that they agree with each other.
// The in-memory repository evaluates conditions with query.FilterRecords;
// the SQLite repository executes the statement compiled by querysql. A
// divergence between the two is reported as a parity failure.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	schema: path/to/cue/dir       # or models: inline CUE source
//	records:
//	  User:
//	    - {id: 1, name: Dan, age: 30}
//	queries:
//	  - name: adults
//	    model: User
//	    options:
//	      age.gte: 21
//	      order: [name.desc]
//	    combine:                  # optional
//	      op: union               # union | intersection | difference | merge
//	      options: {name: Sam}
//	    slice: [0, 2]             # optional [offset, length]
//	    reverse: false            # optional
//	    expect:
//	      records: [{name: Dan}]  # ordered, subset match per record
//	      count: 1
//	      sql: "SELECT ..."      # SQLite statement
//	      error: INVALID_OPTION   # query error code; excludes the rest
//
// # Golden Snapshots
//
// RunWithGolden serializes a scenario's per-step records and SQL as
// canonical JSON and compares it with testdata/golden/<name>.golden.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/users.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness

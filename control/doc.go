// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, metrics and debug introspection for the dispatch runtime.
//
//   - Config is loaded with viper from file and HIOLOAD_* environment
//   - ConfigStore keeps snapshots and notifies ReloadObservers on change
//   - Metrics exports dispatch and reclamation counters to Prometheus
//   - DebugProbes hosts named state probes for the console
package control

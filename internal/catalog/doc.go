// Package catalog maps named action kinds to engine callbacks. The admin API
// submits actions by kind name plus JSON parameters; each Kind validates its
// parameters up front and returns the closure the engine will run.
package catalog

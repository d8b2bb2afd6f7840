// Package signal provides a two-state (set/clear) wakeup primitive shared
// between goroutines. A Signal stays set until Reset, so a Set that lands
// between a Reset and the following Wait is never lost.
//
// Two implementations are provided: NewCond builds on sync.Cond and NewChan
// builds on a closed-channel broadcast. They are interchangeable.
package signal

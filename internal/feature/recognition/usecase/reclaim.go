package usecase

import "runtime/debug"

// Reclaimer はステージ境界でメモリを回収します。
type Reclaimer interface {
	Reclaim()
}

// ReclaimFunc は関数をReclaimerとして扱うアダプターです。
type ReclaimFunc func()

// Reclaim はf()を呼び出します。
func (f ReclaimFunc) Reclaim() { f() }

// FreeOSMemory はGCを実行し、未使用メモリをOSへ返します。
var FreeOSMemory Reclaimer = ReclaimFunc(debug.FreeOSMemory)

// NoReclaim は何もしません。
var NoReclaim Reclaimer = ReclaimFunc(func() {})

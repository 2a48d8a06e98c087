package risk

// BuildGuards 组装报价前的敞口与亏损检查。
func BuildGuards(maxNotional, maxLoss float64) MultiGuard {
	return MultiGuard{Guards: []Guard{
		NotionalGuard{MaxNotional: maxNotional},
		LossGuard{MaxLoss: maxLoss},
	}}
}

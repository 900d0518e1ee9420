package localimpl

type Option struct{}

package g2

type Thing struct{}

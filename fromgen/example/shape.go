package example

import "time"

// Shape 可以由任意分支构造
// @From
type (
	Shape interface{ isShape() }

	ShapeCircle float64
	Rect        struct{ W, H float64 }
	Origin      struct{}

	// @from(skip)
	shapeInternal int
)

func (ShapeCircle) isShape()   {}
func (Rect) isShape()          {}
func (Origin) isShape()        {}
func (shapeInternal) isShape() {}

// Span 时间区间
// @From
type Span [2]time.Time

// Celsius 温度
// @From(output=`$FILE_units.go`)
type Celsius float64

// Endpoint 服务地址
// @From
// @Builder
// @builder(prefix = "With")
type Endpoint struct {
	Host string
	Port int
}

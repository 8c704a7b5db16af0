package device

// Texture is a width x height grid of four-channel float texels stored in
// row-major order.
type Texture struct {
	Name   string
	Width  int
	Height int
	Pix    []float64
}

// Len returns the number of texels.
func (t *Texture) Len() int { return t.Width * t.Height }

func (t *Texture) bytes() int64 { return int64(t.Width) * int64(t.Height) * bytesPerTexel }

// Texel returns the channels of texel (x, y). The slice aliases the texture.
func (t *Texture) Texel(x, y int) []float64 {
	o := (y*t.Width + x) * Channels
	return t.Pix[o : o+Channels : o+Channels]
}

// At returns the channels of the texel at linear index i.
func (t *Texture) At(i int) []float64 {
	o := i * Channels
	return t.Pix[o : o+Channels : o+Channels]
}

// Set overwrites the texel at linear index i.
func (t *Texture) Set(i int, v [Channels]float64) {
	copy(t.At(i), v[:])
}

// Clear zeroes every texel.
func (t *Texture) Clear() {
	clear(t.Pix)
}

// Fill sets every channel of every texel to v.
func (t *Texture) Fill(v float64) {
	for i := range t.Pix {
		t.Pix[i] = v
	}
}

package stream

import "bytes"

// JPEGフレームを区切る2バイトマーカー
var (
	soiMarker = []byte{0xFF, 0xD8} // Start-Of-Image
	eoiMarker = []byte{0xFF, 0xD9} // End-Of-Image
)

// FrameDemuxer は連続したバイトストリームから完全なJPEGフレームを切り出す
// バッファには常に未処理の末尾バイトのみが保持される
type FrameDemuxer struct {
	buf []byte
}

// NewFrameDemuxer は新しいFrameDemuxerを作成する
func NewFrameDemuxer() *FrameDemuxer {
	return &FrameDemuxer{}
}

// Feed はチャンクをバッファへ追加し、完成したフレームを全て返す
// フレームはストリーム上の出現順で返される
// マーカーが見つからない場合は何も返さず、エラーにもならない
func (d *FrameDemuxer) Feed(chunk []byte) [][]byte {
	d.buf = append(d.buf, chunk...)

	var frames [][]byte
	for {
		// 開始マーカー（FF D8）を探す
		start := bytes.Index(d.buf, soiMarker)
		if start == -1 {
			// 末尾の1バイトはチャンク境界で分断されたマーカーの
			// 前半かもしれないため残す
			if len(d.buf) > 1 {
				d.retain(len(d.buf) - 1)
			}
			break
		}

		// 開始マーカーの直後から終了マーカー（FF D9）を探す
		end := bytes.Index(d.buf[start+2:], eoiMarker)
		if end == -1 {
			// フレームはまだ完成していない
			// 開始マーカーより前のバイトはどのフレームにも属さないため捨てる
			if start > 0 {
				d.retain(start)
			}
			break
		}

		// 開始マーカーから終了マーカーまで（両端含む）がフレーム
		frameEnd := start + 2 + end + 2
		frame := make([]byte, frameEnd-start)
		copy(frame, d.buf[start:frameEnd])
		frames = append(frames, frame)

		// 切り出し済みのバイトをバッファから取り除き、
		// 残りに含まれる可能性のある次のフレームを探す
		d.retain(frameEnd)
	}

	return frames
}

// Pending は未処理のままバッファに残っているバイト数を返す
func (d *FrameDemuxer) Pending() int {
	return len(d.buf)
}

// retain はバッファの先頭からnバイトを破棄する
func (d *FrameDemuxer) retain(n int) {
	remaining := len(d.buf) - n
	copy(d.buf, d.buf[n:])
	d.buf = d.buf[:remaining]
}

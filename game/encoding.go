package game

// Planes is the number of input planes produced by InputEncoder.
const Planes = 3

// InputEncoder encodes game state to neural input format.
func InputEncoder(g State) []float32 {
	return EncodeBoard(g.Board(), g.Turn(), g.Rows(), g.Cols())
}

// EncodeBoard encodes a flattened board as three planes: yellow pieces, red pieces, and a
// plane of ones when yellow is to move (zeros otherwise).
func EncodeBoard(board []uint8, mover Player, rows, cols int) []float32 {
	size := rows * cols
	retVal := make([]float32, Planes*size)
	for i, v := range board {
		switch Player(v) {
		case Yellow:
			retVal[i] = 1
		case Red:
			retVal[size+i] = 1
		}
	}
	if mover == Yellow {
		turn := retVal[2*size:]
		for i := range turn {
			turn[i] = 1
		}
	}
	return retVal
}

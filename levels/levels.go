// Package levels catalogues the built-in puzzles: an ASCII map literal,
// the parameter tuple the solver sizes its packed states from, and the
// known optimal move count used to validate solver output.
package levels

import (
	"github.com/brensch/snakebird/game"
)

// Level is one built-in puzzle.
type Level struct {
	Name     string
	MapData  string
	Params   game.Params
	Expected int
}

// Load parses the level's map.
func (l Level) Load() (*game.Map, error) {
	return game.Load(l.MapData, l.Params)
}

// ByName returns the named level.
func ByName(name string) (Level, bool) {
	for _, l := range All {
		if l.Name == name {
			return l, true
		}
	}
	return Level{}, false
}

// All lists the built-in levels in campaign order.
var All = []Level{
	{
		Name: "level01",
		MapData: "" +
			".........." +
			".    *   ." +
			".        ." +
			". .      ." +
			". O  .O. ." +
			".        ." +
			".  .>G   ." +
			".  ....  ." +
			".  ....  ." +
			".  ...   ." +
			"~~~~~~~~~~",
		Params:   game.Params{H: 11, W: 10, Fruits: 2, Snakes: 1, MaxLen: 4},
		Expected: 16,
	},
	{
		Name: "level10",
		MapData: "" +
			".............." +
			".  ...       ." +
			". .... *     ." +
			".    .       ." +
			".  O .   v.. ." +
			".      R<<.  ." +
			".   .... ..  ." +
			".    ... .   ." +
			".      . O   ." +
			".      . ..  ." +
			".      . ..  ." +
			".     .. ..  ." +
			".     ....   ." +
			"~~~~~~~~~~~~~~",
		Params:   game.Params{H: 14, W: 14, Fruits: 2, Snakes: 1, MaxLen: 6},
		Expected: 33,
	},
	{
		Name: "level14",
		MapData: "" +
			"............." +
			".           ." +
			".           ." +
			".         ~ ." +
			".  *   >B   ." +
			".      >R . ." +
			".      ^. . ." +
			".   .   . . ." +
			".   .   . . ." +
			".   .   . . ." +
			"~~~~~~~~~~~~~",
		Params:   game.Params{H: 11, W: 13, Snakes: 2, MaxLen: 3},
		Expected: 24,
	},
	{
		Name: "level22",
		MapData: "" +
			"............." +
			".     *     ." +
			".           ." +
			".           ." +
			".           ." +
			".           ." +
			".  >>R      ." +
			".   ..   00 ." +
			".   .. . 00 ." +
			".   ..   .. ." +
			".   ....... ." +
			".   ....... ." +
			"~~~~~~~~~~~~~",
		Params:   game.Params{H: 13, W: 13, Snakes: 1, MaxLen: 3, Gadgets: 1},
		Expected: 45,
	},
	{
		Name: "level37",
		MapData: "" +
			".............." +
			".       .    ." +
			".       .    ." +
			". .....      ." +
			". .   .      ." +
			".   T   .    ." +
			".   .   .    ." +
			".   .G<<T  * ." +
			".   .>>R.    ." +
			".   .....    ." +
			"~~~~~~~~~~~~~~",
		Params:   game.Params{H: 11, W: 14, Snakes: 2, MaxLen: 3, Teleports: 1},
		Expected: 16,
	},
	{
		Name: "levelstar2",
		MapData: "" +
			"..................." +
			".     ...         ." +
			".   .......       ." +
			".   . O O ..      ." +
			".  ..O.O.O.. ...  ." +
			".  .OOOOOOO...... ." +
			". .. .O.O. R<< *. ." +
			". ..OOOOOOO.....  ." +
			". ...O.O.O....    ." +
			".   . O O .       ." +
			".    ......       ." +
			".    ......       ." +
			".    ...          ." +
			"~~~~~~~~~~~~~~~~~~~",
		Params:   game.Params{H: 14, W: 19, Fruits: 26, Snakes: 1, MaxLen: 29},
		Expected: 60,
	},
}

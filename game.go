package main

import "sort"

// The game stage loop:
//
//	Collecting → Questioning → Guessing → RoundEnd → Collecting (next round)
//
// Each round every member except the current guesser submits an article.
// One submitter is picked at random as the truth-teller; everyone else
// lies about the active article while the guesser questions them.
//
// All functions in this file require the caller to hold the room lock.

// advanceStage moves the room's game to its next stage and returns the
// resulting stage, which is unchanged when the transition's
// precondition does not hold.
//
// From Collecting it advances only once at least len(members)-1
// submissions are pooled. A room with fewer than two members can never
// meet that threshold and simply stays put, which is intended.
func advanceStage(room *Room, rng *lockedRand) Stage {
	game := &room.Game

	switch game.Stage {
	case StageCollecting:
		// A room of one has nobody to lie to; it stalls here rather
		// than erroring.
		if len(room.Members) < 2 || len(game.ArticlePool) < len(room.Members)-1 {
			break
		}

		ids := make([]string, 0, len(game.ArticlePool))
		for id := range game.ArticlePool {
			ids = append(ids, id)
		}
		// Map iteration order is random on its own, but sorting first
		// keeps the draw reproducible under a seeded source.
		sort.Strings(ids)

		truthTeller := ids[rng.Intn(len(ids))]
		game.TruthTellerID = truthTeller

		game.LiarIDs = make([]string, 0, len(ids)-1)
		for _, id := range ids {
			if id != truthTeller {
				game.LiarIDs = append(game.LiarIDs, id)
			}
		}

		active := game.ArticlePool[truthTeller]
		game.ActiveArticle = &active
		game.Stage = StageQuestioning

	case StageQuestioning:
		game.Stage = StageGuessing

	case StageGuessing:
		game.Stage = StageRoundEnd

	case StageRoundEnd:
		game.Round++
		game.LiarIDs = nil
		// The truth-teller becomes next round's guesser and sits out
		// of resupplying; their article leaves the pool with them.
		game.GuesserID = game.TruthTellerID
		if game.TruthTellerID != "" {
			delete(game.ArticlePool, game.TruthTellerID)
		}
		game.TruthTellerID = ""
		game.ActiveArticle = nil
		game.Stage = StageCollecting

		if room.Config.Rounds != 0 && game.Round > room.Config.Rounds {
			room.Game = newGameState()
		}
	}

	return room.Game.Stage
}

// startGame begins the round sequence: round 1, the host guesses first,
// and every member starts from zero. Callable only while no game is in
// progress (Round == 0).
func startGame(room *Room) {
	room.Game.Round = 1
	room.Game.GuesserID = room.HostID

	for _, member := range room.Members {
		room.Game.Score[member.ID] = 0
	}
}

// submitArticle records (or overwrites) a player's submission for the
// round, advancing out of Collecting once enough are pooled. Returns
// the possibly-unchanged stage.
func submitArticle(room *Room, playerID string, article Article, rng *lockedRand) Stage {
	room.Game.ArticlePool[playerID] = article

	if len(room.Game.ArticlePool) >= len(room.Members)-1 {
		return advanceStage(room, rng)
	}

	return room.Game.Stage
}

// recordGuess scores the guesser's pick and advances the stage. A
// correct guess awards a point to both the guesser and the
// truth-teller; a wrong guess rewards the accused liar for deceiving.
func recordGuess(room *Room, guessID string, rng *lockedRand) (correct bool, stage Stage) {
	game := &room.Game

	correct = game.TruthTellerID != "" && game.GuesserID != "" && guessID == game.TruthTellerID
	if correct {
		game.Score[game.GuesserID]++
		game.Score[game.TruthTellerID]++
	} else {
		game.Score[guessID]++
	}

	return correct, advanceStage(room, rng)
}

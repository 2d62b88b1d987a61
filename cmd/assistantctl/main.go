package main

import "ai-productivity-app/assistant/cmd/assistantctl/cmd"

func main() {
	cmd.Execute()
}

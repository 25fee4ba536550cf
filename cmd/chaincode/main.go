package main

import (
	"log"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"github.com/mesikahq/rxledger/internal/chaincode"
)

func main() {
	cc, err := contractapi.NewChaincode(&chaincode.PrescriptionContract{})
	if err != nil {
		log.Panicf("Error creating prescription chaincode: %v", err)
	}

	if err := cc.Start(); err != nil {
		log.Panicf("Error starting prescription chaincode: %v", err)
	}
}

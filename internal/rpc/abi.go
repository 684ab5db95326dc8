package rpc

// Minimal contract ABIs - only the functions and events this engine uses.

const identityABIJSON = `[
  {
    "inputs": [{"internalType": "address", "name": "to", "type": "address"}],
    "name": "mintIdentity",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "owner", "type": "address"}],
    "name": "balanceOf",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "owner", "type": "address"},
      {"internalType": "uint256", "name": "index", "type": "uint256"}
    ],
    "name": "tokenOfOwnerByIndex",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "from", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "to", "type": "address"},
      {"indexed": true, "internalType": "uint256", "name": "tokenId", "type": "uint256"}
    ],
    "name": "Transfer",
    "type": "event"
  }
]`

const scoreABIJSON = `[
  {
    "inputs": [
      {"internalType": "address", "name": "user", "type": "address"},
      {"internalType": "uint256", "name": "newAmount", "type": "uint256"}
    ],
    "name": "adminAdjust",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "user", "type": "address"}],
    "name": "getResonance",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

const registryABIJSON = `[
  {
    "inputs": [
      {"internalType": "address", "name": "follower", "type": "address"},
      {"internalType": "address", "name": "creator", "type": "address"},
      {"internalType": "bytes32", "name": "linkId", "type": "bytes32"},
      {"internalType": "uint8", "name": "actionType", "type": "uint8"},
      {"internalType": "uint256", "name": "weightFollower", "type": "uint256"},
      {"internalType": "uint256", "name": "weightCreator", "type": "uint256"}
    ],
    "name": "recordInteraction",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "follower", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "creator", "type": "address"},
      {"indexed": true, "internalType": "bytes32", "name": "linkId", "type": "bytes32"},
      {"indexed": false, "internalType": "uint8", "name": "actionType", "type": "uint8"},
      {"indexed": false, "internalType": "uint256", "name": "weightFollower", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "weightCreator", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "timestamp", "type": "uint256"}
    ],
    "name": "InteractionRecorded",
    "type": "event"
  }
]`
